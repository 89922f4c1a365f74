// Package leadership picks one process among those sharing a database to run
// background maintenance such as the idle-session sweeper.
//
// The leader holds a lease in storage.LeaderStore and renews it well before
// LeaderTTL runs out. A process that stops renewing, or crashes, loses the
// lease once it expires and any other process may take it.
package leadership

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/contextpg/storage"
)

// Default lease timings.
const (
	DefaultLeaderTTL       = 30 * time.Second
	DefaultElectionPeriod  = 10 * time.Second
	DefaultReelectionDelay = 5 * time.Second
)

// resignTimeout bounds the lease release issued by Stop.
const resignTimeout = 5 * time.Second

// Config tunes the elector.
type Config struct {
	// LeaderTTL is the lease length granted on every election or renewal.
	LeaderTTL time.Duration

	// ElectionPeriod is the wait between campaigns while not leading.
	ElectionPeriod time.Duration

	// ReelectionDelay is the wait between renewals while leading. Keep it
	// well under LeaderTTL.
	ReelectionDelay time.Duration

	// OnError receives store failures. The elector retries on its next
	// round either way.
	OnError func(err error)

	// Now is the clock lease times are computed from.
	Now func() time.Time
}

// DefaultConfig returns the default lease timings.
func DefaultConfig() *Config {
	return &Config{
		LeaderTTL:       DefaultLeaderTTL,
		ElectionPeriod:  DefaultElectionPeriod,
		ReelectionDelay: DefaultReelectionDelay,
		Now:             time.Now,
	}
}

func (c *Config) applyDefaults() {
	if c.LeaderTTL <= 0 {
		c.LeaderTTL = DefaultLeaderTTL
	}
	if c.ElectionPeriod <= 0 {
		c.ElectionPeriod = DefaultElectionPeriod
	}
	if c.ReelectionDelay <= 0 {
		c.ReelectionDelay = DefaultReelectionDelay
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Callbacks observe leadership changes. Both run on the election goroutine,
// or on the caller's goroutine for Resign and Stop.
type Callbacks struct {
	// OnBecameLeader receives the context passed to Start. It is cancelled
	// when the elector stops.
	OnBecameLeader func(ctx context.Context)

	// OnLostLeadership runs after a failed or refused renewal, Resign, or
	// Stop while leading.
	OnLostLeadership func(ctx context.Context)
}

// Elector campaigns for the maintenance lease on behalf of one process.
type Elector struct {
	store      storage.LeaderStore
	instanceID string
	config     *Config
	callbacks  Callbacks

	mu     sync.RWMutex
	leader bool

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewElector creates an elector for instanceID, or for a random id when
// instanceID is empty.
func NewElector(store storage.LeaderStore, instanceID string, config *Config, callbacks Callbacks) *Elector {
	if config == nil {
		config = DefaultConfig()
	}
	config.applyDefaults()
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	return &Elector{
		store:      store,
		instanceID: instanceID,
		config:     config,
		callbacks:  callbacks,
	}
}

// InstanceID returns the id this elector campaigns under.
func (e *Elector) InstanceID() string {
	return e.instanceID
}

// Start campaigns in the background until Stop. An elector can be started
// again after it stops.
func (e *Elector) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	e.done = make(chan struct{})
	ctx, e.cancel = context.WithCancel(ctx)
	go e.campaign(ctx)

	return nil
}

// Stop ends the campaign and releases the lease if this process holds it.
func (e *Elector) Stop(ctx context.Context) error {
	if !e.started.Load() {
		return ErrNotStarted
	}

	e.cancel()
	<-e.done

	if e.setLeader(false) {
		releaseCtx, cancel := context.WithTimeout(ctx, resignTimeout)
		// Release is best effort; an unreleased lease simply expires.
		_ = e.store.LeaderResign(releaseCtx, e.instanceID)
		cancel()
		e.notifyLost(ctx)
	}

	e.started.Store(false)
	return nil
}

// IsLeader reports whether this process currently holds the lease.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader
}

// IsRunning reports whether the elector is campaigning.
func (e *Elector) IsRunning() bool {
	return e.started.Load()
}

// Resign releases the lease now. The campaign goes on, so the lease can be
// won back on a later round.
func (e *Elector) Resign(ctx context.Context) error {
	if !e.setLeader(false) {
		return nil
	}
	if err := e.store.LeaderResign(ctx, e.instanceID); err != nil {
		return err
	}
	e.notifyLost(ctx)
	return nil
}

// campaign runs one round immediately, then one per period until ctx ends.
func (e *Elector) campaign(ctx context.Context) {
	defer close(e.done)

	e.round(ctx)
	for {
		wait := e.config.ElectionPeriod
		if e.IsLeader() {
			wait = e.config.ReelectionDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			e.round(ctx)
		}
	}
}

// round renews the lease when leading and campaigns for it otherwise.
func (e *Elector) round(ctx context.Context) {
	params := &storage.LeaderElectParams{
		LeaderID: e.instanceID,
		TTL:      e.config.LeaderTTL,
		Now:      e.config.Now(),
	}

	if e.IsLeader() {
		held, err := e.store.LeaderAttemptReelect(ctx, params)
		if err != nil {
			e.reportError(ctx, err)
		}
		if (err != nil || !held) && e.setLeader(false) {
			e.notifyLost(ctx)
		}
		return
	}

	won, err := e.store.LeaderAttemptElect(ctx, params)
	if err != nil {
		e.reportError(ctx, err)
		return
	}
	if won && !e.setLeader(true) && e.callbacks.OnBecameLeader != nil {
		e.callbacks.OnBecameLeader(ctx)
	}
}

// setLeader stores the new state and returns the previous one.
func (e *Elector) setLeader(leader bool) (was bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	was, e.leader = e.leader, leader
	return was
}

func (e *Elector) notifyLost(ctx context.Context) {
	if e.callbacks.OnLostLeadership != nil {
		e.callbacks.OnLostLeadership(ctx)
	}
}

func (e *Elector) reportError(ctx context.Context, err error) {
	if ctx.Err() == nil && e.config.OnError != nil {
		e.config.OnError(err)
	}
}
