package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/ports"
	"github.com/propvoice/enquiry-agent/internal/service/dialer"
	"github.com/propvoice/enquiry-agent/internal/service/session"
)

type EnquiryHandler struct {
	repo     ports.EnquiryRepository
	dialer   *dialer.Dialer
	sessions *session.Manager
	calls    ports.CallControl
	log      *zap.Logger
}

func NewEnquiryHandler(repo ports.EnquiryRepository, d *dialer.Dialer, sessions *session.Manager, calls ports.CallControl, log *zap.Logger) *EnquiryHandler {
	return &EnquiryHandler{
		repo:     repo,
		dialer:   d,
		sessions: sessions,
		calls:    calls,
		log:      log,
	}
}

type SubmitEnquiryRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SubmitEnquiry records the form submission and schedules the outbound
// call. The schedule timer outlives the request, so it runs on a
// background context.
func (h *EnquiryHandler) SubmitEnquiry(c *fiber.Ctx) error {
	var req SubmitEnquiryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name == "" || req.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Name and phone are required"})
	}

	enquiry := &domain.Enquiry{
		EnquiryID: uuid.New().String(),
		FormData: domain.FormData{
			Name:    req.Name,
			Phone:   req.Phone,
			Email:   req.Email,
			Message: req.Message,
		},
		SubmittedAt: time.Now(),
		Status:      domain.CallStatusPending,
	}

	if err := h.repo.Save(c.Context(), enquiry); err != nil {
		h.log.Error("Failed to save enquiry", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save enquiry"})
	}

	h.dialer.Schedule(context.Background(), enquiry.EnquiryID, enquiry.FormData.Phone)

	h.log.Info("Enquiry submitted",
		zap.String("enquiry_id", enquiry.EnquiryID),
		zap.String("phone", enquiry.FormData.Phone))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"enquiry_id": enquiry.EnquiryID,
		"status":     enquiry.Status,
	})
}

func (h *EnquiryHandler) ListEnquiries(c *fiber.Ctx) error {
	enquiries, err := h.repo.ListAll(c.Context())
	if err != nil {
		h.log.Error("Failed to list enquiries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list enquiries"})
	}
	return c.JSON(fiber.Map{
		"enquiries": enquiries,
		"count":     len(enquiries),
	})
}

func (h *EnquiryHandler) GetEnquiry(c *fiber.Ctx) error {
	enquiry, err := h.repo.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ports.ErrEnquiryNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enquiry not found"})
		}
		h.log.Error("Failed to get enquiry", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to get enquiry"})
	}
	return c.JSON(enquiry)
}

// Hangup force-terminates a live call on the telephony provider and
// tears down the local session if one is active.
func (h *EnquiryHandler) Hangup(c *fiber.Ctx) error {
	id := c.Params("id")
	enquiry, err := h.repo.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, ports.ErrEnquiryNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Enquiry not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to get enquiry"})
	}
	if enquiry.CallSID == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "No call placed for this enquiry"})
	}

	if err := h.calls.Hangup(c.Context(), enquiry.CallSID); err != nil {
		h.log.Error("Hangup failed", zap.String("call_sid", enquiry.CallSID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Provider rejected hangup"})
	}
	if orch := h.sessions.Get(id); orch != nil {
		orch.Shutdown("hangup requested")
	}

	return c.JSON(fiber.Map{"status": "hangup requested"})
}

// ExotelWebhook acknowledges provider callbacks. The stream itself
// carries all call logic; this endpoint only logs.
func (h *EnquiryHandler) ExotelWebhook(c *fiber.Ctx) error {
	h.log.Info("Telephony webhook",
		zap.String("session_id", c.Query("session_id")),
		zap.String("method", c.Method()))
	return c.SendStatus(fiber.StatusOK)
}

func (h *EnquiryHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":          "ok",
		"active_sessions": h.sessions.Count(),
	})
}
