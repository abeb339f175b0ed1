package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeEngine replays scripted turn results.
type fakeEngine struct {
	mu      sync.Mutex
	turns   []*domain.TurnResult
	next    int
	history []domain.ChatMessage
	closed  bool
}

func (f *fakeEngine) GenerateTurn(ctx context.Context, userInput string) *domain.TurnResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history,
		domain.ChatMessage{Role: domain.RoleUser, Content: userInput})
	var result *domain.TurnResult
	if f.next < len(f.turns) {
		result = f.turns[f.next]
		f.next++
	} else {
		result = &domain.TurnResult{Reply: "Noted!", Slots: map[string]string{}}
	}
	f.history = append(f.history,
		domain.ChatMessage{Role: domain.RoleAssistant, Content: result.Reply})
	return result
}

func (f *fakeEngine) History() []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChatMessage, len(f.history))
	copy(out, f.history)
	return out
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeStreamer records spoken text and stop calls.
type fakeStreamer struct {
	mu     sync.Mutex
	spoken []string
	stops  int
}

func (f *fakeStreamer) Synthesize(ctx context.Context, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return true
}

func (f *fakeStreamer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeStreamer) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	copy(out, f.spoken)
	return out
}

func (f *fakeStreamer) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fixture struct {
	orch     *Orchestrator
	stt      *mocks.MockSpeechToText
	engine   *fakeEngine
	streamer *fakeStreamer
	repo     *mocks.MockEnquiryRepository
	closed   chan string
}

func newFixture(t *testing.T, turns []*domain.TurnResult) *fixture {
	t.Helper()
	repo := mocks.NewMockEnquiryRepository()
	enquiry := &domain.Enquiry{
		EnquiryID:   "enq-1",
		FormData:    domain.FormData{Name: "Asha Rao", Phone: "+911234567890"},
		SubmittedAt: time.Now(),
		Status:      domain.CallStatusCalling,
	}
	if err := repo.Save(context.Background(), enquiry); err != nil {
		t.Fatalf("failed to seed enquiry: %v", err)
	}

	f := &fixture{
		stt:      &mocks.MockSpeechToText{},
		engine:   &fakeEngine{turns: turns},
		streamer: &fakeStreamer{},
		repo:     repo,
		closed:   make(chan string, 1),
	}
	f.orch = NewOrchestrator("enq-1", enquiry, Deps{
		STT:        f.stt,
		Engine:     f.engine,
		Streamer:   f.streamer,
		Repository: repo,
		GraceDelay: 10 * time.Millisecond,
		OnClose:    func(id string) { f.closed <- id },
		Logger:     newTestLogger(),
	})
	return f
}

func (f *fixture) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-f.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close in time")
	}
}

func (f *fixture) waitSpoken(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.streamer.Spoken()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d spoken replies, got %v", n, f.streamer.Spoken())
}

func turn(reply string, slots map[string]string) *domain.TurnResult {
	if slots == nil {
		slots = map[string]string{}
	}
	return &domain.TurnResult{Reply: reply, Slots: slots}
}

func TestStartSpeaksGreetingWithFirstName(t *testing.T) {
	// Arrange
	f := newFixture(t, nil)

	// Act
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Assert
	f.waitSpoken(t, 1)
	greeting := f.streamer.Spoken()[0]
	if !strings.Contains(greeting, "Asha") {
		t.Errorf("greeting should use the caller's first name, got %q", greeting)
	}
	if got := f.orch.State(); got != StateAwaitingIdentityConfirmation {
		t.Errorf("expected AWAITING_IDENTITY_CONFIRMATION, got %s", got)
	}
}

func TestBargeInOnlyStopsPlayback(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.waitSpoken(t, 1)

	f.stt.Emit(mocks.BargeInEvent())

	if got := f.streamer.Stops(); got != 1 {
		t.Errorf("barge-in should stop playback exactly once, got %d stops", got)
	}
	if got := len(f.streamer.Spoken()); got != 1 {
		t.Errorf("barge-in must not trigger a turn, got %d replies", got)
	}
	if got := f.orch.State(); got != StateAwaitingIdentityConfirmation {
		t.Errorf("barge-in must not change state, got %s", got)
	}
}

func TestVisitBookedOverTwoTurns(t *testing.T) {
	// Arrange: date arrives on turn one, time on turn two.
	f := newFixture(t, []*domain.TurnResult{
		turn("Great! What time works for you?", map[string]string{"visit_date": "Saturday"}),
		turn("Perfect, see you Saturday at 11 AM. Goodbye!", map[string]string{"visit_time": "11 AM"}),
	})
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Act
	f.stt.Emit(mocks.FinalTranscript("Saturday"))
	f.stt.Emit(mocks.FinalTranscript("11 AM"))
	f.waitClosed(t)

	// Assert
	stored, err := f.repo.Get(context.Background(), "enq-1")
	if err != nil {
		t.Fatalf("failed to read stored enquiry: %v", err)
	}
	if stored.Status != domain.CallStatusSiteVisitBooked {
		t.Errorf("expected status site_visit_booked, got %s", stored.Status)
	}
	if stored.VisitScheduled == nil {
		t.Fatal("expected visit_scheduled block")
	}
	if stored.VisitScheduled.Date != "Saturday" || stored.VisitScheduled.Time != "11 AM" {
		t.Errorf("unexpected schedule %+v", stored.VisitScheduled)
	}
	if stored.CallData == nil || stored.CallData.CollectedInfo["visit_date"] != "Saturday" {
		t.Error("collected info should retain visit_date from the earlier turn")
	}
}

func TestEngineEndSignalEndsSession(t *testing.T) {
	f := newFixture(t, []*domain.TurnResult{
		{Reply: "No problem, have a great day!", Slots: map[string]string{}, EndCall: true},
	})
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.stt.Emit(mocks.FinalTranscript("not interested"))
	f.waitClosed(t)

	stored, err := f.repo.Get(context.Background(), "enq-1")
	if err != nil {
		t.Fatalf("failed to read stored enquiry: %v", err)
	}
	if stored.Status != domain.CallStatusCompleted {
		t.Errorf("expected status completed, got %s", stored.Status)
	}
	if !f.stt.Closed {
		t.Error("teardown should close the transcription stream")
	}
	if !f.engine.closed {
		t.Error("teardown should close the conversation engine")
	}
}

func TestEveryTurnPersistsCollectedFields(t *testing.T) {
	f := newFixture(t, []*domain.TurnResult{
		turn("Noted! What's your budget?", map[string]string{"preferred_bhk": "3 BHK"}),
	})
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.stt.Emit(mocks.FinalTranscript("a 3 BHK please"))

	stored, err := f.repo.Get(context.Background(), "enq-1")
	if err != nil {
		t.Fatalf("failed to read stored enquiry: %v", err)
	}
	if stored.CallData == nil {
		t.Fatal("expected call data after a turn")
	}
	if stored.CallData.CollectedInfo["preferred_bhk"] != "3 BHK" {
		t.Errorf("collected info not persisted: %+v", stored.CallData.CollectedInfo)
	}
	if len(stored.CallData.ConversationHistory) != 2 {
		t.Errorf("expected 2 history messages, got %d", len(stored.CallData.ConversationHistory))
	}
}

func TestTurnStopsInProgressSynthesisFirst(t *testing.T) {
	f := newFixture(t, []*domain.TurnResult{turn("Sure!", nil)})
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.waitSpoken(t, 1)

	f.stt.Emit(mocks.FinalTranscript("wait, one question"))

	if got := f.streamer.Stops(); got < 1 {
		t.Error("a new turn should cancel in-progress synthesis")
	}
	f.waitSpoken(t, 2)
}

func TestStreamStopTearsDownWithDuration(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.orch.HandleStreamStop()
	f.waitClosed(t)

	if got := f.orch.State(); got != StateClosed {
		t.Errorf("expected CLOSED, got %s", got)
	}
	stored, err := f.repo.Get(context.Background(), "enq-1")
	if err != nil {
		t.Fatalf("failed to read stored enquiry: %v", err)
	}
	if stored.CallData == nil || stored.CallData.EndedAt == nil {
		t.Fatal("final record should carry call data with end time")
	}
	if stored.CallData.DurationSeconds < 0 {
		t.Errorf("negative duration %f", stored.CallData.DurationSeconds)
	}
}

// stallingEngine blocks GenerateTurn until released, so a test can land
// events while a turn is in flight.
type stallingEngine struct {
	fakeEngine
	entered chan struct{}
	release chan struct{}
}

func (s *stallingEngine) GenerateTurn(ctx context.Context, userInput string) *domain.TurnResult {
	close(s.entered)
	<-s.release
	return s.fakeEngine.GenerateTurn(ctx, userInput)
}

func TestHangupDuringTurnKeepsFinalRecord(t *testing.T) {
	// Arrange: the engine stalls so the caller can hang up mid-turn.
	repo := mocks.NewMockEnquiryRepository()
	enquiry := &domain.Enquiry{
		EnquiryID:   "enq-1",
		FormData:    domain.FormData{Name: "Asha Rao", Phone: "+911234567890"},
		SubmittedAt: time.Now(),
		Status:      domain.CallStatusCalling,
	}
	if err := repo.Save(context.Background(), enquiry); err != nil {
		t.Fatalf("failed to seed enquiry: %v", err)
	}
	engine := &stallingEngine{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	streamer := &fakeStreamer{}
	closed := make(chan string, 1)
	orch := NewOrchestrator("enq-1", enquiry, Deps{
		STT:        &mocks.MockSpeechToText{},
		Engine:     engine,
		Streamer:   streamer,
		Repository: repo,
		GraceDelay: time.Millisecond,
		OnClose:    func(id string) { closed <- id },
		Logger:     newTestLogger(),
	})
	if err := orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(streamer.Spoken()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Act: transcript starts a turn, the stream stops while the engine
	// is still thinking, then the engine call returns.
	turnDone := make(chan struct{})
	go func() {
		orch.onTranscript(mocks.FinalTranscript("Saturday works"))
		close(turnDone)
	}()
	<-engine.entered
	stopDone := make(chan struct{})
	go func() {
		orch.HandleStreamStop()
		close(stopDone)
	}()
	time.Sleep(20 * time.Millisecond)
	close(engine.release)
	<-turnDone
	<-stopDone
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close in time")
	}

	// Assert: the final record survives with duration and end time, and
	// the late reply is never spoken.
	stored, err := repo.Get(context.Background(), "enq-1")
	if err != nil {
		t.Fatalf("failed to read stored enquiry: %v", err)
	}
	if stored.CallData == nil || stored.CallData.EndedAt == nil {
		t.Fatal("late turn clobbered the final record: end time missing")
	}
	if stored.CallData.DurationSeconds <= 0 {
		t.Errorf("final record lost its duration: %f", stored.CallData.DurationSeconds)
	}
	if stored.Status != domain.CallStatusCompleted {
		t.Errorf("expected status completed, got %s", stored.Status)
	}
	if spoken := streamer.Spoken(); len(spoken) != 1 {
		t.Errorf("closed session must not speak the late reply, got %v", spoken)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.orch.Shutdown("first")
	f.orch.Shutdown("second")

	f.waitClosed(t)
	select {
	case id := <-f.closed:
		t.Errorf("onClose fired twice, second id %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTranscriptsIgnoredAfterClose(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.orch.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	f.waitSpoken(t, 1)
	f.orch.Shutdown("test")

	f.stt.Emit(mocks.FinalTranscript("hello?"))

	if got := len(f.streamer.Spoken()); got != 1 {
		t.Errorf("closed session must not process turns, got %d replies", got)
	}
}
