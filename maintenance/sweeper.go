// Package maintenance provides background services for contextpg.
//
// The Sweeper compacts sessions that crossed their trigger threshold and then
// went quiet, so the next turn of a returning conversation does not pay for
// summarization. It also clears an expired leader lease. Run it on the leader
// only (see package leadership); the optimistic guard in CommitCompaction keeps
// a stray concurrent sweep from corrupting a session, but it would still waste
// summarizer calls.
package maintenance

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// Default sweeper configuration values
const (
	DefaultSweepInterval  = 1 * time.Minute
	DefaultIdleAfter      = 5 * time.Minute
	DefaultSweepBatchSize = 1000
)

// Compactor is the part of *contextpg.Engine the sweeper drives.
type Compactor interface {
	ShouldCompact(ctx context.Context, sessionID, model string) (compaction.Decision, error)
	Compact(ctx context.Context, sessionID, model string) (*compaction.Result, error)
}

// SweeperConfig holds configuration for the sweeper.
type SweeperConfig struct {
	// Model selects the context window the trigger is evaluated against.
	// Required.
	Model string

	// Interval is how often to sweep.
	// Default: 1 minute
	Interval time.Duration

	// IdleAfter is how long a session must go without writes before the
	// sweeper touches it.
	// Default: 5 minutes
	IdleAfter time.Duration

	// BatchSize caps how many sessions one pass scans, most recently
	// updated first.
	// Default: 1000
	BatchSize int

	// OnCompacted is called for every session the sweep compacted.
	OnCompacted func(sessionID string, result *compaction.Result)

	// OnError is called for every error a sweep collected.
	OnError func(err error)

	// Now overrides time.Now.
	Now func() time.Time
}

// DefaultSweeperConfig returns the default sweeper configuration for model.
func DefaultSweeperConfig(model string) *SweeperConfig {
	return &SweeperConfig{
		Model:     model,
		Interval:  DefaultSweepInterval,
		IdleAfter: DefaultIdleAfter,
		BatchSize: DefaultSweepBatchSize,
		Now:       time.Now,
	}
}

func (c *SweeperConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.IdleAfter < 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultSweepBatchSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// SweepResult holds the results of one sweep.
type SweepResult struct {
	// Scanned is the number of sessions listed.
	Scanned int

	// Idle is the number of scanned sessions past IdleAfter.
	Idle int

	// Compacted is the number of sessions compacted.
	Compacted int

	// TokensFreed is the sum of TokensFreed over compacted sessions.
	TokensFreed int

	// ExpiredLeadersCleaned is the number of expired leader leases removed.
	ExpiredLeadersCleaned int

	// Errors contains any errors that occurred during the sweep.
	Errors []error
}

// Sweeper compacts idle sessions that are over their trigger threshold.
type Sweeper struct {
	store     storage.Store
	leases    storage.LeaderStore
	compactor Compactor
	config    *SweeperConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewSweeper creates a new sweeper. When store also implements
// storage.LeaderStore, expired leases are cleared on every sweep.
func NewSweeper(store storage.Store, compactor Compactor, config *SweeperConfig) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("maintenance: store is required")
	}
	if compactor == nil {
		return nil, fmt.Errorf("maintenance: compactor is required")
	}
	if config == nil || config.Model == "" {
		return nil, fmt.Errorf("maintenance: model is required")
	}
	config.applyDefaults()

	s := &Sweeper{
		store:     store,
		compactor: compactor,
		config:    config,
	}
	if leases, ok := store.(storage.LeaderStore); ok {
		s.leases = leases
	}
	return s, nil
}

// Start begins the sweep loop.
// It returns immediately and sweeps in a goroutine, once right away and then
// every Interval.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)

	return nil
}

// Stop stops the sweep loop and waits for an in-flight sweep to return.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.started.Store(false)
	return nil
}

// IsRunning returns true if the sweep loop is running.
func (s *Sweeper) IsRunning() bool {
	return s.started.Load()
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	result := s.RunOnce(ctx)
	if s.config.OnError == nil || ctx.Err() != nil {
		return
	}
	for _, err := range result.Errors {
		s.config.OnError(err)
	}
}

// RunOnce sweeps once and returns the result.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	result := &SweepResult{}
	now := s.config.Now()

	sessions, err := s.store.ListSessions(ctx, s.config.BatchSize)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("list sessions: %w", err))
	}
	result.Scanned = len(sessions)

	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		if now.Sub(session.UpdatedAt) < s.config.IdleAfter {
			continue
		}
		result.Idle++

		compacted, err := s.sweepSession(ctx, session.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("session %s: %w", session.ID, err))
			continue
		}
		if compacted != nil {
			result.Compacted++
			result.TokensFreed += compacted.TokensFreed
			if s.config.OnCompacted != nil {
				s.config.OnCompacted(session.ID, compacted)
			}
		}
	}

	if s.leases != nil {
		n, err := s.leases.LeaderDeleteExpired(ctx, now)
		if err != nil {
			result.Errors = append(result.Errors, err)
		} else {
			result.ExpiredLeadersCleaned = n
		}
	}

	return result
}

// sweepSession compacts one session when its trigger fires. It returns nil
// without error when nothing was compacted.
func (s *Sweeper) sweepSession(ctx context.Context, sessionID string) (*compaction.Result, error) {
	decision, err := s.compactor.ShouldCompact(ctx, sessionID, s.config.Model)
	if err != nil {
		return nil, err
	}
	if !decision.Compact {
		return nil, nil
	}

	result, err := s.compactor.Compact(ctx, sessionID, s.config.Model)
	if err != nil {
		return nil, err
	}
	switch {
	case result.Compacted():
		return result, nil
	case result.Outcome == compaction.OutcomeSummarizerFailed:
		return nil, fmt.Errorf("summarizer failed: %w", result.Err)
	default:
		// Conflicts and empty prefixes resolve themselves on a later turn.
		return nil, nil
	}
}
