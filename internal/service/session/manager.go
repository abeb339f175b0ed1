package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/ports"
	"github.com/propvoice/enquiry-agent/internal/service/conversation"
	"github.com/propvoice/enquiry-agent/internal/service/speech"
)

// Providers builds fresh per-call provider clients. STT and TTS
// connections are owned by one session; the chat client may be shared
// or per-call depending on the factory.
type Providers struct {
	NewSpeechToText   func() ports.SpeechToText
	NewTextToSpeech   func() ports.TextToSpeech
	NewChatCompletion func() ports.ChatCompletion
}

// ManagerConfig carries the script identity and per-call tuning.
type ManagerConfig struct {
	AgentName   string
	CompanyName string
	ProjectName string
	GraceDelay  time.Duration
	Engine      conversation.Options
}

// Manager owns the active-session registry. Each registered
// orchestrator is driven only by its own connection's goroutines; the
// manager just guards inserts and removes.
type Manager struct {
	repo      ports.EnquiryRepository
	providers Providers
	cfg       ManagerConfig
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

func NewManager(repo ports.EnquiryRepository, providers Providers, cfg ManagerConfig, log *zap.Logger) *Manager {
	return &Manager{
		repo:      repo,
		providers: providers,
		cfg:       cfg,
		log:       log,
		sessions:  make(map[string]*Orchestrator),
	}
}

// StartSession looks up the enquiry for sessionID, assembles the call
// pipeline around the given audio sink, registers it, and speaks the
// greeting.
func (m *Manager) StartSession(ctx context.Context, sessionID string, sink ports.AudioSink) (*Orchestrator, error) {
	enquiry, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("looking up enquiry %s: %w", sessionID, err)
	}

	script := conversation.FormatScript(
		m.cfg.AgentName, m.cfg.CompanyName, m.cfg.ProjectName,
		enquiry.FormData.FirstName(), time.Now(),
	)
	engine, err := conversation.NewEngine(
		m.providers.NewChatCompletion(), script, conversation.SiteVisitSlots,
		m.cfg.Engine, m.log,
	)
	if err != nil {
		return nil, fmt.Errorf("building conversation engine: %w", err)
	}

	orch := NewOrchestrator(sessionID, enquiry, Deps{
		STT:        m.providers.NewSpeechToText(),
		Engine:     engine,
		Streamer:   speech.NewStreamer(m.providers.NewTextToSpeech(), sink, m.log),
		Repository: m.repo,
		GraceDelay: m.cfg.GraceDelay,
		OnClose:    m.remove,
		Logger:     m.log,
	})

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s already active", sessionID)
	}
	m.sessions[sessionID] = orch
	m.mu.Unlock()

	if err := orch.Start(); err != nil {
		m.remove(sessionID)
		return nil, err
	}
	return orch, nil
}

// Get returns the active session for id, or nil.
func (m *Manager) Get(sessionID string) *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ShutdownAll tears down every live session, used on server shutdown.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	active := make([]*Orchestrator, 0, len(m.sessions))
	for _, orch := range m.sessions {
		active = append(active, orch)
	}
	m.mu.Unlock()

	for _, orch := range active {
		orch.Shutdown("server shutting down")
	}
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.log.Info("Session removed from registry", zap.String("session_id", sessionID))
}
