// Package websocket bridges the telephony provider's audio stream into
// a call session: caller audio in, synthesized audio and clear signals
// out, all as JSON text frames.
package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/service/session"
)

// streamEvent is one inbound frame on the telephony stream.
type streamEvent struct {
	Event   string            `json:"event"`
	Media   *mediaPayload     `json:"media,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// SessionID rides on the first frame, either top-level or in headers.
	SessionID string `json:"session_id,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

func (e streamEvent) sessionID() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return e.Headers["session_id"]
}

type StreamHandler struct {
	manager *session.Manager
	logger  *zap.Logger
}

func NewStreamHandler(manager *session.Manager, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{manager: manager, logger: logger}
}

// HandleStream owns one telephony connection for its whole call.
func (h *StreamHandler) HandleStream(c *websocket.Conn) {
	_, first, err := c.ReadMessage()
	if err != nil {
		h.logger.Error("Failed to read stream handshake", zap.Error(err))
		return
	}
	var hello streamEvent
	if err := json.Unmarshal(first, &hello); err != nil {
		h.logger.Error("Malformed stream handshake", zap.Error(err))
		return
	}
	sessionID := hello.sessionID()
	if sessionID == "" {
		h.logger.Error("Stream handshake without session id")
		return
	}

	orch, err := h.manager.StartSession(context.Background(), sessionID, newExotelSink(c))
	if err != nil {
		h.logger.Error("Failed to start call session",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	h.logger.Info("Telephony stream connected", zap.String("session_id", sessionID))
	h.readLoop(c, orch, sessionID)
}

func (h *StreamHandler) readLoop(c *websocket.Conn, orch *session.Orchestrator, sessionID string) {
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			h.logger.Info("Telephony stream closed",
				zap.String("session_id", sessionID), zap.Error(err))
			orch.Shutdown("websocket closed")
			return
		}

		var ev streamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.logger.Warn("Skipping malformed stream frame", zap.Error(err))
			continue
		}

		switch ev.Event {
		case "media":
			if ev.Media == nil {
				continue
			}
			chunk, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				h.logger.Warn("Skipping undecodable media payload", zap.Error(err))
				continue
			}
			orch.HandleAudio(chunk)
		case "stop":
			orch.HandleStreamStop()
			return
		}
	}
}

// wsWriter is the write half of the stream connection.
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// exotelSink plays synthesized audio back over the telephony stream.
// Frame writes are serialized; the read loop and the synthesis goroutine
// both reach the connection through it.
type exotelSink struct {
	mu   sync.Mutex
	conn wsWriter
}

func newExotelSink(conn wsWriter) *exotelSink {
	return &exotelSink{conn: conn}
}

type outboundMedia struct {
	Event string       `json:"event"`
	Media mediaPayload `json:"media"`
}

func (s *exotelSink) PlayAudio(chunk []byte) error {
	frame, err := json.Marshal(outboundMedia{
		Event: "media",
		Media: mediaPayload{Payload: base64.StdEncoding.EncodeToString(chunk)},
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *exotelSink) ClearAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"clear"}`))
}

// SetupStreamRoutes mounts the telephony stream endpoint.
func SetupStreamRoutes(app *fiber.App, handler *StreamHandler) {
	app.Use("/exotel_stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/exotel_stream", websocket.New(handler.HandleStream))
}
