package deepgram

import (
	"testing"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/ports"
	"github.com/propvoice/enquiry-agent/pkg/config"
)

func newTestClient(events *[]ports.TranscriptEvent) *LiveClient {
	logger, _ := zap.NewDevelopment()
	c := NewLiveClient(config.DeepgramConfig{}, logger)
	c.handler = func(ev ports.TranscriptEvent) {
		*events = append(*events, ev)
	}
	return c
}

func result(transcript string, isFinal, speechFinal bool) liveMessage {
	var msg liveMessage
	msg.Type = "Results"
	msg.IsFinal = isFinal
	msg.SpeechFinal = speechFinal
	msg.Channel.Alternatives = []struct {
		Transcript string `json:"transcript"`
	}{{Transcript: transcript}}
	return msg
}

func TestInterimEmitsBargeInOncePerUtterance(t *testing.T) {
	var events []ports.TranscriptEvent
	c := newTestClient(&events)

	c.handleResult(result("hel", false, false))
	c.handleResult(result("hello th", false, false))
	c.handleResult(result("hello there", true, true))

	if len(events) != 2 {
		t.Fatalf("expected barge-in + final, got %d events: %+v", len(events), events)
	}
	if events[0].Kind != ports.TranscriptBargeIn {
		t.Errorf("first event should be barge-in, got %+v", events[0])
	}
	if events[1].Kind != ports.TranscriptFinal || events[1].Text != "hello there" {
		t.Errorf("unexpected final event %+v", events[1])
	}
}

func TestFinalFragmentsConcatenatedOnSpeechFinal(t *testing.T) {
	var events []ports.TranscriptEvent
	c := newTestClient(&events)

	c.handleResult(result("I would like", true, false))
	c.handleResult(result("to visit on Saturday", true, true))

	if len(events) != 1 {
		t.Fatalf("expected a single final event, got %d: %+v", len(events), events)
	}
	if events[0].Text != "I would like to visit on Saturday" {
		t.Errorf("fragments not concatenated: %q", events[0].Text)
	}
}

func TestUtteranceEndFlushesBufferedFinals(t *testing.T) {
	var events []ports.TranscriptEvent
	c := newTestClient(&events)

	c.handleResult(result("eleven a m", true, false))
	c.flushUtterance()

	if len(events) != 1 || events[0].Text != "eleven a m" {
		t.Fatalf("utterance end should flush buffered finals, got %+v", events)
	}
}

func TestUtteranceEndWithNothingBufferedIsSilent(t *testing.T) {
	var events []ports.TranscriptEvent
	c := newTestClient(&events)

	c.flushUtterance()

	if len(events) != 0 {
		t.Errorf("empty flush should emit nothing, got %+v", events)
	}
}

func TestBargeInResetsAfterUtterance(t *testing.T) {
	var events []ports.TranscriptEvent
	c := newTestClient(&events)

	c.handleResult(result("first", false, false))
	c.handleResult(result("first utterance", true, true))
	c.handleResult(result("second", false, false))

	bargeIns := 0
	for _, ev := range events {
		if ev.Kind == ports.TranscriptBargeIn {
			bargeIns++
		}
	}
	if bargeIns != 2 {
		t.Errorf("barge-in should rearm per utterance, got %d signals", bargeIns)
	}
}

func TestEmptyTranscriptsIgnored(t *testing.T) {
	var events []ports.TranscriptEvent
	c := newTestClient(&events)

	c.handleResult(result("  ", false, false))
	c.handleResult(result("", true, true))

	if len(events) != 0 {
		t.Errorf("blank transcripts should emit nothing, got %+v", events)
	}
}

func TestProcessAudioNoOpWhenDisconnected(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	c := NewLiveClient(config.DeepgramConfig{}, logger)

	if err := c.ProcessAudio([]byte{0xFF, 0xFF}); err != nil {
		t.Errorf("disconnected ProcessAudio should be a silent no-op, got %v", err)
	}
}
