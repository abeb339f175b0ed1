package speech

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/observability/telemetry"
	"github.com/propvoice/enquiry-agent/internal/ports"
)

const (
	// queueDepth bounds how many fetched-but-unplayed segments buffer up
	// when the network outruns playback.
	queueDepth = 3

	// playChunkSize is the write granularity to the sink. Small chunks
	// keep the cancellation check interval well under 100ms.
	playChunkSize = 512
)

// Streamer synthesizes reply text segment by segment. All segment
// fetches run concurrently; delivery to the sink is strictly in request
// order. At most one synthesis runs at a time; a new Synthesize call
// cancels a still-running prior one.
type Streamer struct {
	tts  ports.TextToSpeech
	sink ports.AudioSink
	log  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStreamer(tts ports.TextToSpeech, sink ports.AudioSink, log *zap.Logger) *Streamer {
	return &Streamer{tts: tts, sink: sink, log: log}
}

// Synthesize speaks text through the sink. It blocks until every
// segment has been delivered or a stop arrived, and returns whether the
// synthesis ran to completion. Failed segments are skipped; they do not
// fail the run.
func (s *Streamer) Synthesize(ctx context.Context, text string) bool {
	segments := SegmentText(text)
	if len(segments) == 0 {
		return true
	}

	runCtx, done := s.begin(ctx)
	defer s.finish(done)

	s.log.Debug("Synthesizing segments", zap.Int("count", len(segments)))

	// Fire every fetch now; results land in per-index slots so delivery
	// order never depends on network completion order.
	results := make([]chan []byte, len(segments))
	for i, segment := range segments {
		results[i] = make(chan []byte, 1)
		go func(i int, segment string) {
			audio, err := s.tts.SynthesizeSegment(runCtx, segment)
			if err != nil {
				telemetry.TTSSegmentsTotal.WithLabelValues("failed").Inc()
				s.log.Warn("Segment synthesis failed, skipping",
					zap.Int("segment", i), zap.Error(err))
				audio = nil
			} else {
				telemetry.TTSSegmentsTotal.WithLabelValues("ok").Inc()
			}
			results[i] <- audio
		}(i, segment)
	}

	// Producer awaits fetches in request order and feeds the bounded
	// playback queue.
	queue := make(chan []byte, queueDepth)
	go func() {
		defer close(queue)
		for _, result := range results {
			select {
			case audio := <-result:
				if audio == nil {
					continue
				}
				select {
				case queue <- audio:
				case <-runCtx.Done():
					return
				}
			case <-runCtx.Done():
				return
			}
		}
	}()

	for audio := range queue {
		for off := 0; off < len(audio); off += playChunkSize {
			if runCtx.Err() != nil {
				return s.abort()
			}
			end := off + playChunkSize
			if end > len(audio) {
				end = len(audio)
			}
			if err := s.sink.PlayAudio(audio[off:end]); err != nil {
				s.log.Warn("Sink rejected audio, stopping playback", zap.Error(err))
				return s.abort()
			}
		}
	}
	if runCtx.Err() != nil {
		return s.abort()
	}
	return true
}

// Stop cancels the running synthesis, waits for delivery to cease and
// the sink clear to be sent, then returns. No-op when idle.
func (s *Streamer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// begin cancels any prior run, then installs this run's cancellation
// handle. Cancel-and-wait and the install happen under one lock cycle,
// so of two racing calls exactly one holds the slot at a time; the
// other re-checks after the wait and supersedes in turn.
func (s *Streamer) begin(ctx context.Context) (context.Context, chan struct{}) {
	s.mu.Lock()
	for s.cancel != nil {
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		cancel()
		<-done
		s.mu.Lock()
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()
	return runCtx, done
}

func (s *Streamer) finish(done chan struct{}) {
	s.mu.Lock()
	if s.done == done {
		s.cancel()
		s.cancel = nil
		s.done = nil
	}
	s.mu.Unlock()
	close(done)
}

// abort clears buffered sink audio after a stop. The clear is the last
// sink event of the cancelled run.
func (s *Streamer) abort() bool {
	if err := s.sink.ClearAudio(); err != nil {
		s.log.Warn("Failed to clear sink audio", zap.Error(err))
	}
	return false
}
