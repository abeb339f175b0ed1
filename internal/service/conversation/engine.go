// Package conversation drives the scripted sales dialogue: it formats
// the system prompt, calls the chat-completion provider with a
// structured-output contract, and recovers from every provider or
// parsing failure so a turn never fails upward into the call loop.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/internal/domain"
	"github.com/propvoice/enquiry-agent/internal/ports"
)

const replyField = "response"

const (
	apologyReply       = "I'm having trouble with my connection. Let's continue - could you repeat that?"
	formatRecoveryText = "I'm having trouble with my response format. Could you repeat that?"
)

// farewellPhrases is the end-of-call heuristic; the call_complete slot is
// authoritative when the model sets it.
var farewellPhrases = []string{"goodbye", "bye", "take care", "have a great day"}

type Options struct {
	Model           string
	FallbackModel   string
	Temperature     float64
	TopP            float64
	MaxTokens       int
	MaxHistoryTurns int
}

type Engine struct {
	llm    ports.ChatCompletion
	opts   Options
	slots  []domain.SlotSpec
	script string
	guard  *Guardrail
	log    *zap.Logger

	mu      sync.Mutex
	history []domain.ChatMessage
}

func NewEngine(llm ports.ChatCompletion, script string, slots []domain.SlotSpec, opts Options, log *zap.Logger) (*Engine, error) {
	if err := ValidateSlots(slots); err != nil {
		return nil, fmt.Errorf("invalid slot schema: %w", err)
	}
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = 10
	}
	return &Engine{
		llm:    llm,
		opts:   opts,
		slots:  slots,
		script: script,
		guard:  NewGuardrail(),
		log:    log,
	}, nil
}

// GenerateTurn runs one user turn. It never returns an error: provider
// and validation failures degrade to an apologetic reply with defaulted
// slots, and both sides of the exchange are appended to history on every
// path.
func (e *Engine) GenerateTurn(ctx context.Context, userInput string) *domain.TurnResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.appendHistory(domain.RoleUser, userInput)

	content, err := e.complete(ctx, e.opts.Model)
	if err != nil && errors.Is(err, ports.ErrRateLimited) {
		e.log.Warn("Rate limited, retrying on fallback model",
			zap.String("fallback_model", e.opts.FallbackModel))
		content, err = e.complete(ctx, e.opts.FallbackModel)
	}

	var result *domain.TurnResult
	if err != nil {
		e.log.Error("Chat completion failed, using apology reply", zap.Error(err))
		result = e.apologyResult()
	} else {
		result = e.parseResult(content)
	}

	if !e.guard.OnScript(result.Reply) {
		e.log.Warn("Reply drifted off script", zap.String("reply", result.Reply))
	}

	e.appendHistory(domain.RoleAssistant, result.Reply)
	return result
}

func (e *Engine) complete(ctx context.Context, model string) (string, error) {
	messages := make([]domain.ChatMessage, 0, len(e.history)+1)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: buildSystemPrompt(e.script, e.slots),
	})
	messages = append(messages, e.history...)

	return e.llm.Complete(ctx, ports.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: e.opts.Temperature,
		TopP:        e.opts.TopP,
		MaxTokens:   e.opts.MaxTokens,
		JSONMode:    true,
	})
}

// parseResult validates the structured payload strictly, then falls back
// to permissive extraction, then to the apology reply. Every declared
// slot is present in the output on all three paths.
func (e *Engine) parseResult(content string) *domain.TurnResult {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		e.log.Error("Structured response is not JSON", zap.Error(err))
		return e.apologyResult()
	}

	strict := true
	slots := make(map[string]string, len(e.slots))
	for _, spec := range e.slots {
		var value string
		if rawValue, ok := raw[spec.Name]; ok && json.Unmarshal(rawValue, &value) == nil && value != "" {
			slots[spec.Name] = value
		} else {
			slots[spec.Name] = domain.SlotDefault
			strict = false
		}
	}

	var reply string
	if rawReply, ok := raw[replyField]; !ok || json.Unmarshal(rawReply, &reply) != nil || reply == "" {
		reply = formatRecoveryText
		strict = false
	}
	if !strict {
		e.log.Info("Recovered structured response permissively")
	}

	return &domain.TurnResult{
		Reply:   reply,
		Slots:   slots,
		EndCall: e.shouldEndCall(reply, slots),
	}
}

func (e *Engine) apologyResult() *domain.TurnResult {
	slots := make(map[string]string, len(e.slots))
	for _, spec := range e.slots {
		slots[spec.Name] = domain.SlotDefault
	}
	return &domain.TurnResult{Reply: apologyReply, Slots: slots}
}

func (e *Engine) shouldEndCall(reply string, slots map[string]string) bool {
	if slots["call_complete"] == "yes" {
		return true
	}
	lower := strings.ToLower(reply)
	for _, phrase := range farewellPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (e *Engine) appendHistory(role, content string) {
	e.history = append(e.history, domain.ChatMessage{Role: role, Content: content})

	// Window = turn pairs, so twice the configured count in messages.
	max := e.opts.MaxHistoryTurns * 2
	if len(e.history) > max {
		e.history = e.history[len(e.history)-max:]
	}
}

// History returns a copy of the rolling conversation history.
func (e *Engine) History() []domain.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ChatMessage, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) Close() error {
	return e.llm.Close()
}
