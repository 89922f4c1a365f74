package contextpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/hooks"
	"github.com/youssefsiam38/contextpg/storage"
)

// Engine runs the per-turn pipeline: append the user turn, compact when
// the trigger fires, assemble the history for generation, and record the
// response. Turns on the same session are serialized; different sessions
// proceed concurrently.
type Engine struct {
	store     storage.Store
	compactor *compaction.Compactor
	hooks     *hooks.Registry
	logger    compaction.Logger
	now       func() time.Time
	locks     *sessionLocks

	systemPrompt   string
	autoCompaction bool
}

// TurnResult is the outcome of ProcessTurn.
type TurnResult struct {
	// Messages is the assembled history to feed to generation.
	Messages []compaction.ContextMessage

	// UserMessage is the persisted user turn.
	UserMessage *storage.Message

	// Compaction is always set. Its Outcome is OutcomeNotTriggered when the
	// trigger declined or automatic compaction is disabled.
	Compaction *compaction.Result

	// Tokens is the context usage figure the trigger was evaluated against.
	Tokens int
}

// Stats describes a session's context usage.
type Stats struct {
	SessionID string

	ActiveMessages  int
	RetiredMessages int
	SummaryMessages int

	// ActiveTokens sums the active messages; it is exact only when every
	// message carries a reported count.
	ActiveTokens    compaction.TokenCount
	ExactTokens     int
	EstimatedTokens int

	// CachedTokens is the session's stored cumulative count.
	CachedTokens int

	WindowSize      int
	Threshold       int
	UsagePercent    float64
	CompactionCount int
	LastCompactedAt *time.Time

	// Decision is the trigger evaluation for the current state.
	Decision        compaction.Decision
	NeedsCompaction bool
}

// New creates an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ic := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(ic); err != nil {
			return nil, err
		}
	}

	compactor, err := compaction.New(ic.store, ic.completer, ic.compaction,
		compaction.WithLogger(ic.logger),
		compaction.WithRegistry(ic.registry),
		compaction.WithClock(ic.now),
	)
	if err != nil {
		return nil, NewEngineError("New", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	return &Engine{
		store:          ic.store,
		compactor:      compactor,
		hooks:          ic.hooks,
		logger:         ic.logger,
		now:            ic.now,
		locks:          newSessionLocks(),
		systemPrompt:   ic.systemPrompt,
		autoCompaction: ic.autoCompaction,
	}, nil
}

// Store returns the underlying store.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Hooks returns the hook registry.
func (e *Engine) Hooks() *hooks.Registry {
	return e.hooks
}

// Compactor returns the compactor.
func (e *Engine) Compactor() *compaction.Compactor {
	return e.compactor
}

// EnsureSession returns the session, creating it on first contact.
func (e *Engine) EnsureSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	if sessionID == "" {
		return nil, NewEngineError("EnsureSession", fmt.Errorf("%w: session id is required", ErrInvalidConfig))
	}
	session, err := e.store.EnsureSession(ctx, sessionID, e.now())
	if err != nil {
		return nil, NewEngineErrorWithSession("EnsureSession", sessionID, err)
	}
	return session, nil
}

// EnsureSystemPrompt appends prompt as a system directive unless the
// session already has an active system message. It reports whether the
// directive was added.
func (e *Engine) EnsureSystemPrompt(ctx context.Context, sessionID, prompt string) (bool, error) {
	release, err := e.locks.acquire(ctx, sessionID)
	if err != nil {
		return false, NewEngineErrorWithSession("EnsureSystemPrompt", sessionID, err)
	}
	defer release()

	if _, err := e.EnsureSession(ctx, sessionID); err != nil {
		return false, err
	}
	return e.ensureSystemPrompt(ctx, sessionID, prompt)
}

func (e *Engine) ensureSystemPrompt(ctx context.Context, sessionID, prompt string) (bool, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return false, nil
	}

	active, err := e.store.ActiveMessages(ctx, sessionID)
	if err != nil {
		return false, NewEngineErrorWithSession("EnsureSystemPrompt", sessionID, err)
	}
	for _, m := range active {
		if m.Role == storage.RoleSystem {
			return false, nil
		}
	}

	if err := e.store.AppendMessage(ctx, &storage.Message{
		SessionID: sessionID,
		Role:      storage.RoleSystem,
		Content:   prompt,
		CreatedAt: e.now(),
	}); err != nil {
		return false, NewEngineErrorWithSession("EnsureSystemPrompt", sessionID, err)
	}

	e.logger.Debug("seeded system prompt", "session_id", sessionID)
	return true, nil
}

// GetMessagesForContext assembles the active history of a session.
func (e *Engine) GetMessagesForContext(ctx context.Context, sessionID string) ([]compaction.ContextMessage, error) {
	active, err := e.store.ActiveMessages(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("GetMessagesForContext", sessionID, err)
	}
	return compaction.Assemble(active), nil
}

// ProcessTurn appends the user's input, compacts when the trigger fires,
// and returns the history to feed to generation. A summarizer failure or
// a declined trigger is reported through TurnResult.Compaction and the
// turn proceeds; storage failures are returned.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, userText, model string) (*TurnResult, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, ErrEmptyInput)
	}

	release, err := e.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, err)
	}
	defer release()

	if _, err := e.EnsureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if e.systemPrompt != "" {
		if _, err := e.ensureSystemPrompt(ctx, sessionID, e.systemPrompt); err != nil {
			return nil, err
		}
	}

	userMsg := &storage.Message{
		SessionID: sessionID,
		Role:      storage.RoleUser,
		Content:   userText,
		CreatedAt: e.now(),
	}
	if err := e.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, err)
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, err)
	}
	active, err := e.store.ActiveMessages(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, err)
	}

	tokens := compaction.SumTokens(active).N
	if session.CumulativeTokens > 0 {
		tokens = session.CumulativeTokens + compaction.EstimateTokens(userText)
	}

	result := &TurnResult{UserMessage: userMsg, Tokens: tokens}

	decision := e.compactor.Trigger().Evaluate(session, model, tokens, len(active), e.now())
	if e.autoCompaction && decision.Compact {
		result.Compaction, err = e.compact(ctx, sessionID, decision, func() (*compaction.Result, error) {
			return e.compactor.CompactIfNeeded(ctx, sessionID, model, tokens)
		})
		if err != nil {
			return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, err)
		}
		if result.Compaction.Compacted() {
			if active, err = e.store.ActiveMessages(ctx, sessionID); err != nil {
				return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, err)
			}
		}
	} else {
		result.Compaction = &compaction.Result{Outcome: compaction.OutcomeNotTriggered, Decision: decision}
	}

	// A committed compaction already stored its own figure.
	if !result.Compaction.Compacted() {
		if err := e.store.UpdateTokenCount(ctx, sessionID, tokens, e.now()); err != nil {
			return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, err)
		}
	}

	result.Messages = compaction.Assemble(active)
	if err := e.hooks.TriggerBeforeContext(ctx, sessionID, result.Messages); err != nil {
		return nil, NewEngineErrorWithSession("ProcessTurn", sessionID, fmt.Errorf("%w: %w", ErrHookFailed, err))
	}

	return result, nil
}

// RecordResponse persists the assistant's response and refreshes the
// session's token count from usage, or from the active messages when
// usage is nil. Blank responses are not persisted.
func (e *Engine) RecordResponse(ctx context.Context, sessionID, text string, usage *storage.Usage) error {
	if strings.TrimSpace(text) == "" {
		e.logger.Debug("skipping empty response", "session_id", sessionID)
		return nil
	}

	release, err := e.locks.acquire(ctx, sessionID)
	if err != nil {
		return NewEngineErrorWithSession("RecordResponse", sessionID, err)
	}
	defer release()

	msg := &storage.Message{
		SessionID: sessionID,
		Role:      storage.RoleAssistant,
		Content:   text,
		CreatedAt: e.now(),
	}
	if usage != nil && usage.OutputTokens > 0 {
		out := usage.OutputTokens
		msg.TokenCount = &out
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return NewEngineErrorWithSession("RecordResponse", sessionID, err)
	}

	var tokens int
	if usage != nil && usage.InputTokens+usage.OutputTokens > 0 {
		tokens = usage.InputTokens + usage.OutputTokens
	} else {
		active, err := e.store.ActiveMessages(ctx, sessionID)
		if err != nil {
			return NewEngineErrorWithSession("RecordResponse", sessionID, err)
		}
		tokens = compaction.SumTokens(active).N
	}
	if err := e.store.UpdateTokenCount(ctx, sessionID, tokens, e.now()); err != nil {
		return NewEngineErrorWithSession("RecordResponse", sessionID, err)
	}

	if err := e.hooks.TriggerAfterResponse(ctx, sessionID, msg, usage); err != nil {
		e.logger.Warn("after-response hook failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// ShouldCompact evaluates the trigger for the session's current state
// without side effects.
func (e *Engine) ShouldCompact(ctx context.Context, sessionID, model string) (compaction.Decision, error) {
	session, active, err := e.load(ctx, sessionID)
	if err != nil {
		return compaction.Decision{}, NewEngineErrorWithSession("ShouldCompact", sessionID, err)
	}
	return e.compactor.Trigger().Evaluate(session, model, currentTokens(session, active), len(active), e.now()), nil
}

// Compact compacts the session now, bypassing the token threshold. The
// cooldown still applies.
func (e *Engine) Compact(ctx context.Context, sessionID, model string) (*compaction.Result, error) {
	release, err := e.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("Compact", sessionID, err)
	}
	defer release()

	session, active, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("Compact", sessionID, err)
	}
	decision := e.compactor.Trigger().Evaluate(session, model, currentTokens(session, active), len(active), e.now())
	if e.compactor.Trigger().CooldownRemaining(session, e.now()) == 0 {
		decision.Compact = true
		decision.Reason = compaction.ReasonTriggered
	}

	result, err := e.compact(ctx, sessionID, decision, func() (*compaction.Result, error) {
		return e.compactor.Compact(ctx, sessionID, model)
	})
	if err != nil {
		return nil, NewEngineErrorWithSession("Compact", sessionID, err)
	}
	return result, nil
}

// RefreshTokenCount recomputes the session's cached count from its active
// messages and stores it.
func (e *Engine) RefreshTokenCount(ctx context.Context, sessionID string) (int, error) {
	release, err := e.locks.acquire(ctx, sessionID)
	if err != nil {
		return 0, NewEngineErrorWithSession("RefreshTokenCount", sessionID, err)
	}
	defer release()

	active, err := e.store.ActiveMessages(ctx, sessionID)
	if err != nil {
		return 0, NewEngineErrorWithSession("RefreshTokenCount", sessionID, err)
	}
	tokens := compaction.SumTokens(active).N
	if err := e.store.UpdateTokenCount(ctx, sessionID, tokens, e.now()); err != nil {
		return 0, NewEngineErrorWithSession("RefreshTokenCount", sessionID, err)
	}
	return tokens, nil
}

// Stats reports the session's context usage against model's window.
func (e *Engine) Stats(ctx context.Context, sessionID, model string) (*Stats, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("Stats", sessionID, err)
	}
	all, err := e.store.Messages(ctx, sessionID)
	if err != nil {
		return nil, NewEngineErrorWithSession("Stats", sessionID, err)
	}

	stats := &Stats{
		SessionID:       sessionID,
		CachedTokens:    session.CumulativeTokens,
		CompactionCount: session.CompactionCount,
		LastCompactedAt: session.LastCompactedAt,
		ActiveTokens:    compaction.ExactCount(0),
	}

	active := make([]*storage.Message, 0, len(all))
	for _, m := range all {
		if m.Retired {
			stats.RetiredMessages++
			continue
		}
		active = append(active, m)
		stats.ActiveMessages++
		if m.IsSummary {
			stats.SummaryMessages++
		}
		count := compaction.MessageTokens(m)
		if count.Exact {
			stats.ExactTokens += count.N
		} else {
			stats.EstimatedTokens += count.N
		}
		stats.ActiveTokens = stats.ActiveTokens.Add(count)
	}

	stats.Decision = e.compactor.Trigger().Evaluate(session, model, currentTokens(session, active), len(active), e.now())
	stats.NeedsCompaction = stats.Decision.Compact
	stats.WindowSize = stats.Decision.WindowSize
	stats.Threshold = stats.Decision.Threshold
	stats.UsagePercent = stats.Decision.Usage() * 100

	return stats, nil
}

// compact runs fn between the compaction hooks. A before-hook error
// cancels the attempt; after-hook errors are logged.
func (e *Engine) compact(ctx context.Context, sessionID string, decision compaction.Decision, fn func() (*compaction.Result, error)) (*compaction.Result, error) {
	if decision.Compact {
		if err := e.hooks.TriggerBeforeCompaction(ctx, sessionID, decision); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHookFailed, err)
		}
	}

	result, err := fn()
	if err != nil {
		return nil, err
	}

	if result.Outcome != compaction.OutcomeNotTriggered {
		if err := e.hooks.TriggerAfterCompaction(ctx, sessionID, result); err != nil {
			e.logger.Warn("after-compaction hook failed", "session_id", sessionID, "error", err)
		}
	}
	return result, nil
}

func (e *Engine) load(ctx context.Context, sessionID string) (*storage.Session, []*storage.Message, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	active, err := e.store.ActiveMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, active, nil
}

// currentTokens prefers the stored count and falls back to the active
// messages when nothing has been stored yet.
func currentTokens(session *storage.Session, active []*storage.Message) int {
	if session.CumulativeTokens > 0 {
		return session.CumulativeTokens
	}
	return compaction.SumTokens(active).N
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrSessionNotFound)
}
