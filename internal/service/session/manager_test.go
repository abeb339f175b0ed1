package session

import (
	"context"
	"testing"
	"time"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/mocks"
	"github.com/propvoice/enquiry-agent/internal/ports"
	"github.com/propvoice/enquiry-agent/internal/service/conversation"
)

func newTestManager(t *testing.T, repo ports.EnquiryRepository) *Manager {
	t.Helper()
	providers := Providers{
		NewSpeechToText: func() ports.SpeechToText { return &mocks.MockSpeechToText{} },
		NewTextToSpeech: func() ports.TextToSpeech { return &mocks.MockTextToSpeech{} },
		NewChatCompletion: func() ports.ChatCompletion {
			return &mocks.MockChatCompletion{
				CompleteFunc: func(ctx context.Context, req ports.ChatRequest) (string, error) {
					return `{"response":"Noted!"}`, nil
				},
			}
		},
	}
	cfg := ManagerConfig{
		AgentName:   "Rohan",
		CompanyName: "JLL Homes",
		ProjectName: "Brigade Eternia",
		GraceDelay:  10 * time.Millisecond,
		Engine:      conversation.Options{Model: "m", FallbackModel: "f", MaxHistoryTurns: 10},
	}
	return NewManager(repo, providers, cfg, newTestLogger())
}

func seedEnquiry(t *testing.T, repo ports.EnquiryRepository, id string) {
	t.Helper()
	err := repo.Save(context.Background(), &domain.Enquiry{
		EnquiryID:   id,
		FormData:    domain.FormData{Name: "Asha Rao", Phone: "+911234567890"},
		SubmittedAt: time.Now(),
		Status:      domain.CallStatusCalling,
	})
	if err != nil {
		t.Fatalf("failed to seed enquiry: %v", err)
	}
}

func TestStartSessionRegistersAndGreets(t *testing.T) {
	repo := mocks.NewMockEnquiryRepository()
	seedEnquiry(t, repo, "enq-1")
	mgr := newTestManager(t, repo)

	orch, err := mgr.StartSession(context.Background(), "enq-1", mocks.NewMockAudioSink())
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	if mgr.Count() != 1 {
		t.Errorf("expected 1 active session, got %d", mgr.Count())
	}
	if mgr.Get("enq-1") != orch {
		t.Error("registry should return the started session")
	}
}

func TestStartSessionUnknownEnquiry(t *testing.T) {
	mgr := newTestManager(t, mocks.NewMockEnquiryRepository())

	_, err := mgr.StartSession(context.Background(), "missing", mocks.NewMockAudioSink())
	if err == nil {
		t.Fatal("expected error for unknown session id")
	}
	if mgr.Count() != 0 {
		t.Errorf("failed start must not leave a registry entry, got %d", mgr.Count())
	}
}

func TestStartSessionRejectsDuplicate(t *testing.T) {
	repo := mocks.NewMockEnquiryRepository()
	seedEnquiry(t, repo, "enq-1")
	mgr := newTestManager(t, repo)

	if _, err := mgr.StartSession(context.Background(), "enq-1", mocks.NewMockAudioSink()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := mgr.StartSession(context.Background(), "enq-1", mocks.NewMockAudioSink()); err == nil {
		t.Error("duplicate session id should be rejected")
	}
}

func TestSessionRemovedOnShutdown(t *testing.T) {
	repo := mocks.NewMockEnquiryRepository()
	seedEnquiry(t, repo, "enq-1")
	mgr := newTestManager(t, repo)

	orch, err := mgr.StartSession(context.Background(), "enq-1", mocks.NewMockAudioSink())
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	orch.Shutdown("test")

	if mgr.Count() != 0 {
		t.Errorf("expected empty registry after shutdown, got %d", mgr.Count())
	}
}

func TestShutdownAllDrainsRegistry(t *testing.T) {
	repo := mocks.NewMockEnquiryRepository()
	seedEnquiry(t, repo, "enq-1")
	seedEnquiry(t, repo, "enq-2")
	mgr := newTestManager(t, repo)

	for _, id := range []string{"enq-1", "enq-2"} {
		if _, err := mgr.StartSession(context.Background(), id, mocks.NewMockAudioSink()); err != nil {
			t.Fatalf("start %s failed: %v", id, err)
		}
	}

	mgr.ShutdownAll()

	if mgr.Count() != 0 {
		t.Errorf("expected empty registry, got %d", mgr.Count())
	}
}
