package compaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/youssefsiam38/contextpg/storage"
)

// Logger interface for compaction logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger {
	return noopLogger{}
}

// Outcome tags the result of a compaction attempt.
type Outcome string

const (
	// OutcomeCompacted means the transition was committed.
	OutcomeCompacted Outcome = "compacted"
	// OutcomeNotTriggered means the trigger evaluator declined; see Result.Decision.
	OutcomeNotTriggered Outcome = "not_triggered"
	// OutcomeNothingToCompact means every active message fits the target budget.
	OutcomeNothingToCompact Outcome = "nothing_to_compact"
	// OutcomeNothingNew means no message was appended since the last summary.
	OutcomeNothingNew Outcome = "nothing_new"
	// OutcomeTooFewToCompact means the compact set was below MinMessages.
	OutcomeTooFewToCompact Outcome = "too_few_to_compact"
	// OutcomeSummarizerFailed means no summary was produced; see Result.Err.
	OutcomeSummarizerFailed Outcome = "summarizer_failed"
	// OutcomeConflict means another writer compacted the session first.
	OutcomeConflict Outcome = "conflict"
)

// Result contains the outcome of a compaction attempt. Only
// OutcomeCompacted changes stored state.
type Result struct {
	Outcome Outcome

	// Decision is the trigger evaluation the attempt ran under.
	Decision Decision

	TokensBefore int
	TokensAfter  int
	TokensFreed  int

	CompactedCount int
	KeptCount      int

	SummaryMessageID int64
	EventID          string
	Usage            storage.Usage

	// Err carries the cause of OutcomeSummarizerFailed and OutcomeConflict.
	Err error

	Duration time.Duration
}

// Compacted reports whether the attempt committed a compaction.
func (r *Result) Compacted() bool {
	return r != nil && r.Outcome == OutcomeCompacted
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Compactor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry sets the context window registry.
func WithRegistry(registry *Registry) Option {
	return func(c *Compactor) {
		if registry != nil {
			c.registry = registry
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Compactor) {
		if now != nil {
			c.now = now
		}
	}
}

// Compactor drives trigger evaluation, retention selection, summarization
// and the atomic commit for one session at a time. Callers serialize
// attempts on the same session; the commit additionally rejects a
// transition computed from a stale read.
type Compactor struct {
	store       storage.Store
	config      *Config
	registry    *Registry
	trigger     *Trigger
	partitioner *Partitioner
	summarizer  *Summarizer
	logger      Logger
	now         func() time.Time
}

// New creates a new Compactor with the given configuration.
// If config is nil, default configuration is used.
func New(store storage.Store, completer Completer, config *Config, opts ...Option) (*Compactor, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if completer == nil {
		return nil, fmt.Errorf("%w: completer is required", ErrInvalidConfig)
	}

	c := &Compactor{
		store:       store,
		config:      config,
		registry:    NewRegistry(),
		partitioner: NewPartitioner(config),
		summarizer:  NewSummarizer(completer, config),
		logger:      noopLogger{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.trigger = NewTrigger(config, c.registry)
	return c, nil
}

// Config returns the compactor's configuration.
func (c *Compactor) Config() *Config {
	return c.config
}

// Registry returns the context window registry.
func (c *Compactor) Registry() *Registry {
	return c.registry
}

// Trigger returns the trigger evaluator.
func (c *Compactor) Trigger() *Trigger {
	return c.trigger
}

// CompactIfNeeded evaluates the trigger against currentTokens and compacts
// when it fires. A declined trigger is OutcomeNotTriggered, not an error.
func (c *Compactor) CompactIfNeeded(ctx context.Context, sessionID, model string, currentTokens int) (*Result, error) {
	return c.run(ctx, sessionID, model, func(session *storage.Session, active []*storage.Message, now time.Time) Decision {
		return c.trigger.Evaluate(session, model, currentTokens, len(active), now)
	})
}

// Compact compacts the session regardless of the token threshold and the
// active message guard. The cooldown still applies.
func (c *Compactor) Compact(ctx context.Context, sessionID, model string) (*Result, error) {
	return c.run(ctx, sessionID, model, func(session *storage.Session, active []*storage.Message, now time.Time) Decision {
		d := c.trigger.Evaluate(session, model, SumTokens(active).N, len(active), now)
		if remaining := c.trigger.CooldownRemaining(session, now); remaining > 0 {
			d.Compact = false
			d.Reason = ReasonCooldown
			d.CooldownRemaining = remaining
			return d
		}
		d.Compact = true
		d.Reason = ReasonTriggered
		return d
	})
}

type decideFunc func(session *storage.Session, active []*storage.Message, now time.Time) Decision

func (c *Compactor) run(ctx context.Context, sessionID, model string, decide decideFunc) (*Result, error) {
	start := c.now()

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, storageError("GetSession", sessionID, err)
	}

	active, err := c.store.ActiveMessages(ctx, sessionID)
	if err != nil {
		return nil, storageError("ActiveMessages", sessionID, err)
	}

	result := &Result{Decision: decide(session, active, start)}
	finish := func(outcome Outcome) (*Result, error) {
		result.Outcome = outcome
		result.Duration = c.now().Sub(start)
		return result, nil
	}

	if !result.Decision.Compact {
		c.logger.Debug("compaction not triggered",
			"session_id", sessionID,
			"reason", result.Decision.Reason,
			"tokens", result.Decision.CurrentTokens,
			"threshold", result.Decision.Threshold,
		)
		return finish(OutcomeNotTriggered)
	}

	if len(active) == 0 {
		return finish(OutcomeNothingToCompact)
	}
	if active[len(active)-1].IsSummary {
		c.logger.Debug("nothing new since last summary", "session_id", sessionID)
		return finish(OutcomeNothingNew)
	}

	window := c.registry.WindowSize(model)
	partition := c.partitioner.Partition(active, c.config.TargetBudget(window))
	result.TokensBefore = partition.Stats.TotalTokens.N
	result.KeptCount = len(partition.Pinned) + len(partition.Keep)
	result.CompactedCount = len(partition.Compact)

	c.logger.Debug("partition complete",
		"session_id", sessionID,
		"budget", partition.Budget,
		"pinned", len(partition.Pinned),
		"keep", len(partition.Keep),
		"compact", len(partition.Compact),
		"kept_tokens", partition.RetainedTokens().String(),
	)

	if len(partition.Compact) == 0 {
		return finish(OutcomeNothingToCompact)
	}
	if !partition.CanCompact() {
		c.logger.Info("compact set below minimum",
			"session_id", sessionID,
			"compact", len(partition.Compact),
			"min_messages", c.config.MinMessages,
		)
		return finish(OutcomeTooFewToCompact)
	}

	c.logger.Info("starting compaction",
		"session_id", sessionID,
		"model", model,
		"window", window,
		"tokens_before", result.TokensBefore,
	)

	summary, err := c.summarizer.Summarize(ctx, partition.Compact)
	if err != nil {
		c.logger.Warn("summarization failed, continuing without compaction",
			"session_id", sessionID,
			"error", err,
		)
		result.Err = NewCompactionError("Summarize", err).
			WithSession(sessionID).
			WithContext("window", window).
			WithContext("budget", partition.Budget).
			WithContext("compact", len(partition.Compact))
		return finish(OutcomeSummarizerFailed)
	}

	content := summary.Content()
	result.TokensAfter = partition.RetainedTokens().N + EstimateTokens(content)
	result.TokensFreed = result.TokensBefore - result.TokensAfter
	result.Usage = summary.Usage

	now := c.now()
	event, err := c.store.CommitCompaction(ctx, &storage.CompactionCommit{
		SessionID:               sessionID,
		ExpectedLastCompactedAt: session.LastCompactedAt,
		RetireIDs:               partition.CompactIDs(),
		SummaryContent:          content,
		TokensBefore:            result.TokensBefore,
		TokensAfter:             result.TokensAfter,
		SummarizerModel:         c.summarizer.Model(),
		Usage:                   summary.Usage,
		Duration:                now.Sub(start),
		Now:                     now,
	})
	if errors.Is(err, storage.ErrConcurrentCompaction) {
		c.logger.Warn("compaction lost to a concurrent writer", "session_id", sessionID)
		result.Err = NewCompactionError("Commit", err).
			WithSession(sessionID).
			WithContext("retire", len(partition.Compact))
		result.TokensAfter, result.TokensFreed = 0, 0
		return finish(OutcomeConflict)
	}
	if err != nil {
		return nil, storageError("Commit", sessionID, err)
	}

	result.SummaryMessageID = event.SummaryMessageID
	result.EventID = event.ID

	c.logger.Info("compaction complete",
		"session_id", sessionID,
		"event_id", event.ID,
		"compacted", result.CompactedCount,
		"kept", result.KeptCount,
		"tokens_before", result.TokensBefore,
		"tokens_after", result.TokensAfter,
		"tokens_freed", result.TokensFreed,
	)

	return finish(OutcomeCompacted)
}

func storageError(op, sessionID string, err error) error {
	if errors.Is(err, storage.ErrSessionNotFound) {
		return WrapErrorWithSession(op, sessionID, err)
	}
	return WrapErrorWithSession(op, sessionID, fmt.Errorf("%w: %w", ErrStorageError, err))
}
