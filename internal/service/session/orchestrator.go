// Package session runs one phone call end to end: it bridges transcript
// events into conversation turns, turns into synthesized replies, and
// persists collected fields after every exchange.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/observability/telemetry"
	"github.com/propvoice/enquiry-agent/internal/ports"
)

// State is the call-session lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAwaitingIdentityConfirmation
	StateInConversation
	StateEnding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingIdentityConfirmation:
		return "AWAITING_IDENTITY_CONFIRMATION"
	case StateInConversation:
		return "IN_CONVERSATION"
	case StateEnding:
		return "ENDING"
	default:
		return "CLOSED"
	}
}

// ConversationEngine is the slice of the conversation package the
// orchestrator depends on.
type ConversationEngine interface {
	GenerateTurn(ctx context.Context, userInput string) *domain.TurnResult
	History() []domain.ChatMessage
	Close() error
}

// ReplyStreamer is the slice of the speech streamer the orchestrator
// depends on.
type ReplyStreamer interface {
	Synthesize(ctx context.Context, text string) bool
	Stop()
}

// Orchestrator drives one call session. Transcript events arrive on the
// STT read-loop goroutine, which serializes turns naturally; reply
// synthesis runs on its own goroutine so barge-in stays responsive
// while audio is playing.
type Orchestrator struct {
	sessionID string
	enquiry   *domain.Enquiry

	stt      ports.SpeechToText
	engine   ConversationEngine
	streamer ReplyStreamer
	repo     ports.EnquiryRepository

	graceDelay time.Duration
	onClose    func(sessionID string)
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	startedAt time.Time
	slots     map[string]string
	booked    bool

	// turnMu is held for the whole of a turn. Shutdown takes it before
	// the final record write, so a turn in flight when the caller hangs
	// up can never persist over the final record.
	turnMu    sync.Mutex
	closeOnce sync.Once
}

// Deps carries the per-session collaborators.
type Deps struct {
	STT        ports.SpeechToText
	Engine     ConversationEngine
	Streamer   ReplyStreamer
	Repository ports.EnquiryRepository
	GraceDelay time.Duration
	// OnClose is invoked exactly once after teardown, with the session id.
	OnClose func(sessionID string)
	Logger  *zap.Logger
}

func NewOrchestrator(sessionID string, enquiry *domain.Enquiry, deps Deps) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		sessionID:  sessionID,
		enquiry:    enquiry,
		stt:        deps.STT,
		engine:     deps.Engine,
		streamer:   deps.Streamer,
		repo:       deps.Repository,
		graceDelay: deps.GraceDelay,
		onClose:    deps.OnClose,
		log:        deps.Logger.With(zap.String("session_id", sessionID)),
		ctx:        ctx,
		cancel:     cancel,
		state:      StateConnecting,
		slots:      make(map[string]string),
	}
}

// Start opens the transcript stream and speaks the greeting. The session
// then waits for the caller's first utterance.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	o.startedAt = time.Now()
	o.mu.Unlock()

	if err := o.stt.Start(o.ctx, o.onTranscript); err != nil {
		return fmt.Errorf("starting transcription: %w", err)
	}

	greeting := fmt.Sprintf("Hi, am I speaking with %s?", o.enquiry.FormData.FirstName())
	o.setState(StateAwaitingIdentityConfirmation)
	o.speak(greeting, false)

	telemetry.ActiveCallSessions.Inc()
	o.log.Info("Session started", zap.String("caller", o.enquiry.FormData.Phone))
	return nil
}

// HandleAudio forwards one caller audio chunk to the transcriber.
func (o *Orchestrator) HandleAudio(chunk []byte) {
	if o.State() == StateClosed {
		return
	}
	if err := o.stt.ProcessAudio(chunk); err != nil {
		o.log.Warn("Failed to forward audio chunk", zap.Error(err))
	}
}

// HandleStreamStop tears the session down on the telephony stop event.
func (o *Orchestrator) HandleStreamStop() {
	o.Shutdown("stream stopped")
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	if o.state != StateClosed {
		o.state = s
	}
	o.mu.Unlock()
	if prev != s {
		o.log.Debug("State transition",
			zap.String("from", prev.String()), zap.String("to", s.String()))
	}
}

// onTranscript runs on the STT read-loop goroutine. Barge-in only stops
// playback; final transcripts each run one full turn before the next
// event is delivered.
func (o *Orchestrator) onTranscript(ev ports.TranscriptEvent) {
	switch ev.Kind {
	case ports.TranscriptBargeIn:
		telemetry.BargeInsTotal.Inc()
		o.log.Debug("Barge-in, stopping playback")
		o.streamer.Stop()
	case ports.TranscriptFinal:
		if ev.Text == "" {
			return
		}
		o.handleTurn(ev.Text)
	}
}

func (o *Orchestrator) handleTurn(userInput string) {
	if s := o.State(); s == StateClosed || s == StateEnding {
		return
	}
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.setState(StateInConversation)
	o.log.Info("User turn", zap.String("transcript", userInput))

	turnStart := time.Now()
	o.streamer.Stop()

	result := o.engine.GenerateTurn(o.ctx, userInput)
	telemetry.TurnLatency.Observe(time.Since(turnStart).Seconds())

	// The caller may have hung up while the engine call was in flight.
	// Teardown owns the record from here on.
	if o.State() == StateClosed {
		o.log.Info("Session closed mid-turn, discarding reply")
		return
	}

	o.mergeSlots(result.Slots)
	ending := o.checkEnding(result)
	o.persistTurn()

	telemetry.ConversationTurnsTotal.WithLabelValues("ok").Inc()
	o.log.Info("Agent turn", zap.String("reply", result.Reply), zap.Bool("ending", ending))
	o.speak(result.Reply, ending)
}

// mergeSlots keeps the latest non-default value for every slot, so a
// later turn cannot erase a field the caller already gave.
func (o *Orchestrator) mergeSlots(latest map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name, value := range latest {
		if value != domain.SlotDefault {
			o.slots[name] = value
		}
	}
}

// checkEnding decides whether this turn ends the call: a booked visit
// (both date and time collected) or an explicit engine end signal.
func (o *Orchestrator) checkEnding(result *domain.TurnResult) bool {
	o.mu.Lock()
	date, timeSlot := o.slots["visit_date"], o.slots["visit_time"]
	o.mu.Unlock()

	booked := date != "" && date != domain.SlotDefault &&
		timeSlot != "" && timeSlot != domain.SlotDefault
	if !booked && !result.EndCall {
		return false
	}

	if booked {
		status := domain.CallStatusSiteVisitBooked
		err := o.repo.Update(o.ctx, o.sessionID, domain.EnquiryPatch{
			Status:         &status,
			VisitScheduled: &domain.VisitSchedule{Date: date, Time: timeSlot},
		})
		if err != nil {
			o.log.Error("Failed to record booked visit", zap.Error(err))
		} else {
			telemetry.SiteVisitsBookedTotal.Inc()
			o.log.Info("Site visit booked",
				zap.String("date", date), zap.String("time", timeSlot))
		}
		o.mu.Lock()
		o.booked = true
		o.mu.Unlock()
	}
	o.setState(StateEnding)
	return true
}

// persistTurn writes collected fields and history after every turn, so a
// crash mid-call loses at most the current exchange.
func (o *Orchestrator) persistTurn() {
	o.mu.Lock()
	collected := make(map[string]string, len(o.slots))
	for k, v := range o.slots {
		collected[k] = v
	}
	o.mu.Unlock()

	start := time.Now()
	err := o.repo.Update(o.ctx, o.sessionID, domain.EnquiryPatch{
		CallData: &domain.CallData{
			CollectedInfo:       collected,
			ConversationHistory: o.engine.History(),
		},
	})
	telemetry.StorageLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		o.log.Error("Failed to persist turn", zap.Error(err))
	}
}

// speak synthesizes the reply off the transcript goroutine. A final
// reply is spoken in full, then the grace delay runs and the session
// tears down.
func (o *Orchestrator) speak(text string, final bool) {
	go func() {
		completed := o.streamer.Synthesize(o.ctx, text)
		if !final {
			return
		}
		if completed {
			select {
			case <-time.After(o.graceDelay):
			case <-o.ctx.Done():
			}
		}
		o.Shutdown("conversation complete")
	}()
}

// Shutdown tears the session down exactly once: stops playback, closes
// provider handles, writes final status and duration, and removes the
// session from the registry.
func (o *Orchestrator) Shutdown(reason string) {
	o.closeOnce.Do(func() {
		o.log.Info("Session closing", zap.String("reason", reason))

		o.mu.Lock()
		o.state = StateClosed
		startedAt := o.startedAt
		booked := o.booked
		o.mu.Unlock()

		o.streamer.Stop()
		o.cancel()

		// Wait out any turn still in flight. It observes StateClosed
		// once the engine call returns and skips its persist.
		o.turnMu.Lock()
		o.turnMu.Unlock()

		if err := o.stt.Close(); err != nil {
			o.log.Warn("Failed to close transcription stream", zap.Error(err))
		}
		if err := o.engine.Close(); err != nil {
			o.log.Warn("Failed to close conversation engine", zap.Error(err))
		}

		o.writeFinalRecord(booked, startedAt)

		telemetry.ActiveCallSessions.Dec()
		if o.onClose != nil {
			o.onClose(o.sessionID)
		}
	})
}

func (o *Orchestrator) writeFinalRecord(booked bool, startedAt time.Time) {
	o.mu.Lock()
	collected := make(map[string]string, len(o.slots))
	for k, v := range o.slots {
		collected[k] = v
	}
	o.mu.Unlock()

	endedAt := time.Now()
	callData := &domain.CallData{
		CollectedInfo:       collected,
		ConversationHistory: o.engine.History(),
		DurationSeconds:     endedAt.Sub(startedAt).Seconds(),
		EndedAt:             &endedAt,
	}

	patch := domain.EnquiryPatch{CallData: callData}
	// A booked visit already carries its terminal status; everything
	// else that got this far counts as completed.
	if !booked {
		status := domain.CallStatusCompleted
		patch.Status = &status
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.repo.Update(ctx, o.sessionID, patch); err != nil {
		o.log.Error("Failed to write final call record", zap.Error(err))
	}
}
