package ports

import (
	"context"
	"errors"

	"github.com/propvoice/enquiry-agent/internal/domain"
)

// TranscriptKind distinguishes conversational transcripts from the
// out-of-band barge-in signal. Barge-in used to be an in-band sentinel
// string in the transcript channel; it is a typed event here so a literal
// transcript can never be mistaken for a control message.
type TranscriptKind int

const (
	// TranscriptBargeIn fires once per utterance when interim speech is
	// detected while the agent may still be talking.
	TranscriptBargeIn TranscriptKind = iota
	// TranscriptFinal carries a complete utterance.
	TranscriptFinal
)

// TranscriptEvent is emitted by a SpeechToText stream.
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
}

// TranscriptHandler receives transcript events. Handlers are invoked from
// the provider's read loop; a slow handler delays subsequent events for
// the same session, which is the intended per-session turn ordering.
type TranscriptHandler func(ev TranscriptEvent)

// SpeechToText streams caller audio to an ASR provider.
type SpeechToText interface {
	Start(ctx context.Context, handler TranscriptHandler) error
	// ProcessAudio forwards one audio chunk. After connection loss calls
	// become no-ops until the stream is restarted.
	ProcessAudio(chunk []byte) error
	Close() error
}

// AudioSink receives synthesized audio for playback on the telephony leg.
type AudioSink interface {
	PlayAudio(chunk []byte) error
	// ClearAudio tells the sink to drop any buffered, not-yet-played audio.
	ClearAudio() error
}

// TextToSpeech synthesizes one text segment per call. Streaming,
// segmentation and cancellation live above this in service/speech.
type TextToSpeech interface {
	SynthesizeSegment(ctx context.Context, text string) ([]byte, error)
	Close() error
}

// ErrRateLimited is returned by ChatCompletion when the provider rejects
// the request with a rate-limit class error. The conversation engine
// retries once against the fallback model on this error only.
var ErrRateLimited = errors.New("chat completion rate limited")

// ChatRequest is one chat-completion call.
type ChatRequest struct {
	Model       string
	Messages    []domain.ChatMessage
	Temperature float64
	TopP        float64
	MaxTokens   int
	JSONMode    bool
}

// ChatCompletion calls an LLM chat endpoint and returns the raw assistant
// message content.
type ChatCompletion interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Close() error
}

// CallControl places and terminates calls on the telephony provider.
type CallControl interface {
	// Connect dials the customer and bridges to the agent flow. Returns
	// the provider call SID.
	Connect(ctx context.Context, fromNumber, toNumber, sessionID string) (string, error)
	Hangup(ctx context.Context, callSID string) error
}
