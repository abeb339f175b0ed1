// Package mocks holds hand-rolled fakes for the capability ports, used
// across service tests.
package mocks

import (
	"context"
	"sync"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/ports"
)

type MockChatCompletion struct {
	CompleteFunc func(ctx context.Context, req ports.ChatRequest) (string, error)
	CloseFunc    func() error

	mu    sync.Mutex
	Calls []ports.ChatRequest
}

func (m *MockChatCompletion) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "{}", nil
}

func (m *MockChatCompletion) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

type MockSpeechToText struct {
	StartFunc        func(ctx context.Context, handler ports.TranscriptHandler) error
	ProcessAudioFunc func(chunk []byte) error
	CloseFunc        func() error

	mu      sync.Mutex
	handler ports.TranscriptHandler
	Closed  bool
}

func (m *MockSpeechToText) Start(ctx context.Context, handler ports.TranscriptHandler) error {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, handler)
	}
	return nil
}

func (m *MockSpeechToText) ProcessAudio(chunk []byte) error {
	if m.ProcessAudioFunc != nil {
		return m.ProcessAudioFunc(chunk)
	}
	return nil
}

func (m *MockSpeechToText) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Emit drives the registered handler as the provider read loop would.
func (m *MockSpeechToText) Emit(ev ports.TranscriptEvent) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// FinalTranscript builds a final-utterance event.
func FinalTranscript(text string) ports.TranscriptEvent {
	return ports.TranscriptEvent{Kind: ports.TranscriptFinal, Text: text}
}

// BargeInEvent builds the interrupt signal an STT stream emits on
// interim speech.
func BargeInEvent() ports.TranscriptEvent {
	return ports.TranscriptEvent{Kind: ports.TranscriptBargeIn}
}

type MockTextToSpeech struct {
	SynthesizeSegmentFunc func(ctx context.Context, text string) ([]byte, error)
	CloseFunc             func() error

	mu       sync.Mutex
	Segments []string
}

func (m *MockTextToSpeech) SynthesizeSegment(ctx context.Context, text string) ([]byte, error) {
	m.mu.Lock()
	m.Segments = append(m.Segments, text)
	m.mu.Unlock()
	if m.SynthesizeSegmentFunc != nil {
		return m.SynthesizeSegmentFunc(ctx, text)
	}
	return []byte(text), nil
}

func (m *MockTextToSpeech) RequestedSegments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Segments))
	copy(out, m.Segments)
	return out
}

func (m *MockTextToSpeech) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockAudioSink records every chunk and clear signal in arrival order.
type MockAudioSink struct {
	mu     sync.Mutex
	chunks [][]byte
	events []string // "play" / "clear"
}

func NewMockAudioSink() *MockAudioSink {
	return &MockAudioSink{}
}

func (m *MockAudioSink) PlayAudio(chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := make([]byte, len(chunk))
	copy(c, chunk)
	m.chunks = append(m.chunks, c)
	m.events = append(m.events, "play")
	return nil
}

func (m *MockAudioSink) ClearAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "clear")
	return nil
}

// Audio concatenates everything played so far.
func (m *MockAudioSink) Audio() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, c := range m.chunks {
		out = append(out, c...)
	}
	return out
}

// Events returns the play/clear sequence.
func (m *MockAudioSink) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

// PlaysAfterLastClear counts chunks delivered after the final clear signal.
func (m *MockAudioSink) PlaysAfterLastClear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, ev := range m.events {
		if ev == "clear" {
			count = 0
		} else {
			count++
		}
	}
	return count
}

// MockEnquiryRepository is an in-memory repository; func fields override
// individual operations when set.
type MockEnquiryRepository struct {
	SaveFunc   func(ctx context.Context, enquiry *domain.Enquiry) error
	GetFunc    func(ctx context.Context, id string) (*domain.Enquiry, error)
	UpdateFunc func(ctx context.Context, id string, patch domain.EnquiryPatch) error

	mu      sync.Mutex
	records map[string]*domain.Enquiry
}

func NewMockEnquiryRepository() *MockEnquiryRepository {
	return &MockEnquiryRepository{records: make(map[string]*domain.Enquiry)}
}

func (m *MockEnquiryRepository) Save(ctx context.Context, enquiry *domain.Enquiry) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, enquiry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *enquiry
	m.records[enquiry.EnquiryID] = &e
	return nil
}

func (m *MockEnquiryRepository) Get(ctx context.Context, id string) (*domain.Enquiry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.records[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, ports.ErrEnquiryNotFound
}

func (m *MockEnquiryRepository) Update(ctx context.Context, id string, patch domain.EnquiryPatch) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, patch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[id]
	if !ok {
		return ports.ErrEnquiryNotFound
	}
	patch.Apply(e)
	return nil
}

func (m *MockEnquiryRepository) ListAll(ctx context.Context) ([]domain.Enquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Enquiry, 0, len(m.records))
	for _, e := range m.records {
		out = append(out, *e)
	}
	return out, nil
}

type MockCallControl struct {
	ConnectFunc func(ctx context.Context, fromNumber, toNumber, sessionID string) (string, error)
	HangupFunc  func(ctx context.Context, callSID string) error

	mu       sync.Mutex
	Connects []string
}

func (m *MockCallControl) Connect(ctx context.Context, fromNumber, toNumber, sessionID string) (string, error) {
	m.mu.Lock()
	m.Connects = append(m.Connects, sessionID)
	m.mu.Unlock()
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, fromNumber, toNumber, sessionID)
	}
	return "call-sid", nil
}

func (m *MockCallControl) Hangup(ctx context.Context, callSID string) error {
	if m.HangupFunc != nil {
		return m.HangupFunc(ctx, callSID)
	}
	return nil
}
