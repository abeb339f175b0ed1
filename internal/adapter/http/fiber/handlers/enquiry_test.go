package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/mocks"
	"github.com/propvoice/enquiry-agent/internal/ports"
	"github.com/propvoice/enquiry-agent/internal/service/conversation"
	"github.com/propvoice/enquiry-agent/internal/service/dialer"
	"github.com/propvoice/enquiry-agent/internal/service/session"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func newTestApp(t *testing.T, repo *mocks.MockEnquiryRepository, calls *mocks.MockCallControl) *fiber.App {
	t.Helper()
	log := newTestLogger()
	d := dialer.New(calls, repo, "+918000000000", time.Millisecond, log)
	sessions := session.NewManager(repo, session.Providers{
		NewSpeechToText:   func() ports.SpeechToText { return &mocks.MockSpeechToText{} },
		NewTextToSpeech:   func() ports.TextToSpeech { return &mocks.MockTextToSpeech{} },
		NewChatCompletion: func() ports.ChatCompletion { return &mocks.MockChatCompletion{} },
	}, session.ManagerConfig{
		AgentName: "Rohan", CompanyName: "JLL Homes", ProjectName: "Brigade Eternia",
		GraceDelay: time.Millisecond,
		Engine:     conversation.Options{Model: "m", FallbackModel: "f", MaxHistoryTurns: 10},
	}, log)

	h := NewEnquiryHandler(repo, d, sessions, calls, log)
	app := fiber.New()
	app.Post("/submit-enquiry", h.SubmitEnquiry)
	app.Get("/enquiries", h.ListEnquiries)
	app.Get("/enquiries/:id", h.GetEnquiry)
	app.Post("/enquiries/:id/hangup", h.Hangup)
	app.Get("/health", h.Health)
	return app
}

func TestSubmitEnquiryReturnsID(t *testing.T) {
	// Arrange
	repo := mocks.NewMockEnquiryRepository()
	app := newTestApp(t, repo, &mocks.MockCallControl{})
	body, _ := json.Marshal(map[string]string{
		"name": "Asha Rao", "phone": "+911234567890", "email": "a@x.com",
	})

	// Act
	req := httptest.NewRequest("POST", "/submit-enquiry", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Assert
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out struct {
		EnquiryID string `json:"enquiry_id"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.EnquiryID == "" {
		t.Error("expected a generated enquiry_id")
	}
	if out.Status != string(domain.CallStatusPending) {
		t.Errorf("expected pending status, got %s", out.Status)
	}

	// The scheduled call fires after the configured delay.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := repo.Get(context.Background(), out.EnquiryID)
		if err == nil && stored.Status == domain.CallStatusCalling {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("stored enquiry never transitioned pending -> calling")
}

func TestSubmitEnquiryValidation(t *testing.T) {
	app := newTestApp(t, mocks.NewMockEnquiryRepository(), &mocks.MockCallControl{})

	body, _ := json.Marshal(map[string]string{"name": "Asha Rao"})
	req := httptest.NewRequest("POST", "/submit-enquiry", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("missing phone should be a 400, got %d", resp.StatusCode)
	}
}

func TestGetEnquiryNotFound(t *testing.T) {
	app := newTestApp(t, mocks.NewMockEnquiryRepository(), &mocks.MockCallControl{})

	resp, err := app.Test(httptest.NewRequest("GET", "/enquiries/nope", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListEnquiries(t *testing.T) {
	repo := mocks.NewMockEnquiryRepository()
	_ = repo.Save(context.Background(), &domain.Enquiry{
		EnquiryID: "enq-1",
		FormData:  domain.FormData{Name: "Asha Rao", Phone: "+911234567890"},
		Status:    domain.CallStatusPending,
	})
	app := newTestApp(t, repo, &mocks.MockCallControl{})

	resp, err := app.Test(httptest.NewRequest("GET", "/enquiries", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("expected 1 enquiry, got %d", out.Count)
	}
}

func TestHangupWithoutCall(t *testing.T) {
	repo := mocks.NewMockEnquiryRepository()
	_ = repo.Save(context.Background(), &domain.Enquiry{
		EnquiryID: "enq-1",
		FormData:  domain.FormData{Name: "Asha Rao", Phone: "+911234567890"},
		Status:    domain.CallStatusPending,
	})
	app := newTestApp(t, repo, &mocks.MockCallControl{})

	resp, err := app.Test(httptest.NewRequest("POST", "/enquiries/enq-1/hangup", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("hangup without a placed call should be a 409, got %d", resp.StatusCode)
	}
}

func TestHealthReportsActiveSessions(t *testing.T) {
	app := newTestApp(t, mocks.NewMockEnquiryRepository(), &mocks.MockCallControl{})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var out struct {
		Status         string `json:"status"`
		ActiveSessions int    `json:"active_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Status != "ok" || out.ActiveSessions != 0 {
		t.Errorf("unexpected health payload: %+v", out)
	}
}
