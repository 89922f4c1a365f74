package leadership

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youssefsiam38/contextpg/storage"
)

// countingStore wraps a MemoryStore lease with call counters and injectable
// failures.
type countingStore struct {
	*storage.MemoryStore
	electCalled   atomic.Int32
	reelectCalled atomic.Int32
	resignCalled  atomic.Int32
	electErr      error
	reelectErr    atomic.Value // error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore()}
}

func (m *countingStore) LeaderAttemptElect(ctx context.Context, params *storage.LeaderElectParams) (bool, error) {
	m.electCalled.Add(1)
	if m.electErr != nil {
		return false, m.electErr
	}
	return m.MemoryStore.LeaderAttemptElect(ctx, params)
}

func (m *countingStore) LeaderAttemptReelect(ctx context.Context, params *storage.LeaderElectParams) (bool, error) {
	m.reelectCalled.Add(1)
	if err, _ := m.reelectErr.Load().(error); err != nil {
		return false, err
	}
	return m.MemoryStore.LeaderAttemptReelect(ctx, params)
}

func (m *countingStore) LeaderResign(ctx context.Context, leaderID string) error {
	m.resignCalled.Add(1)
	return m.MemoryStore.LeaderResign(ctx, leaderID)
}

func fastConfig() *Config {
	return &Config{
		LeaderTTL:       100 * time.Millisecond,
		ElectionPeriod:  50 * time.Millisecond,
		ReelectionDelay: 25 * time.Millisecond,
	}
}

func TestElector_StartStop(t *testing.T) {
	store := newCountingStore()
	elector := NewElector(store, "instance-1", fastConfig(), Callbacks{})

	ctx := context.Background()

	// Start should succeed
	if err := elector.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Second start should fail
	if err := elector.Start(ctx); err != ErrAlreadyStarted {
		t.Fatalf("Start() error = %v, want %v", err, ErrAlreadyStarted)
	}

	// Give time for at least one election attempt
	time.Sleep(100 * time.Millisecond)

	// Stop should succeed
	if err := elector.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := elector.Stop(ctx); err != ErrNotStarted {
		t.Errorf("Stop() error = %v, want %v", err, ErrNotStarted)
	}

	// At least one election should have been attempted
	if store.electCalled.Load() == 0 {
		t.Error("Expected at least one election attempt")
	}

	// Stopping as leader releases the lease.
	if leader, _ := store.LeaderGetCurrent(ctx, time.Now()); leader != nil {
		t.Errorf("lease still held by %s after Stop", leader.LeaderID)
	}

	// The elector can be started again.
	if err := elector.Start(ctx); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := elector.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestElector_BecomesLeader(t *testing.T) {
	store := newCountingStore()

	var becameLeaderCount atomic.Int32

	elector := NewElector(store, "instance-1", fastConfig(), Callbacks{
		OnBecameLeader: func(ctx context.Context) {
			becameLeaderCount.Add(1)
		},
	})

	ctx := context.Background()

	if err := elector.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait for election
	time.Sleep(100 * time.Millisecond)

	if !elector.IsLeader() {
		t.Error("Expected to be leader")
	}

	if becameLeaderCount.Load() != 1 {
		t.Errorf("OnBecameLeader called %d times, want 1", becameLeaderCount.Load())
	}

	if err := elector.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestElector_OneLeaderPerStore(t *testing.T) {
	store := newCountingStore()
	ctx := context.Background()

	a := NewElector(store, "a", fastConfig(), Callbacks{})
	b := NewElector(store, "b", fastConfig(), Callbacks{})
	for _, e := range []*Elector{a, b} {
		if err := e.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}

	time.Sleep(150 * time.Millisecond)

	if a.IsLeader() == b.IsLeader() {
		t.Errorf("a.IsLeader() = %t, b.IsLeader() = %t; want exactly one", a.IsLeader(), b.IsLeader())
	}

	for _, e := range []*Elector{a, b} {
		if err := e.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}
}

func TestElector_Resign(t *testing.T) {
	store := newCountingStore()

	var lostLeadershipCount atomic.Int32

	elector := NewElector(store, "instance-1", fastConfig(), Callbacks{
		OnLostLeadership: func(ctx context.Context) {
			lostLeadershipCount.Add(1)
		},
	})

	ctx := context.Background()

	if err := elector.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait for election
	time.Sleep(100 * time.Millisecond)

	if !elector.IsLeader() {
		t.Error("Expected to be leader before resign")
	}

	// Resign
	if err := elector.Resign(ctx); err != nil {
		t.Fatalf("Resign() error = %v", err)
	}

	if elector.IsLeader() {
		t.Error("Expected not to be leader after resign")
	}

	if lostLeadershipCount.Load() != 1 {
		t.Errorf("OnLostLeadership called %d times, want 1", lostLeadershipCount.Load())
	}

	if store.resignCalled.Load() != 1 {
		t.Errorf("LeaderResign called %d times, want 1", store.resignCalled.Load())
	}

	if err := elector.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestElector_ReelectionMaintainsLeadership(t *testing.T) {
	store := newCountingStore()

	elector := NewElector(store, "instance-1", fastConfig(), Callbacks{})

	ctx := context.Background()

	if err := elector.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait for initial election + some re-elections
	time.Sleep(200 * time.Millisecond)

	if !elector.IsLeader() {
		t.Error("Expected to remain leader")
	}

	// Should have re-elected at least once
	if store.reelectCalled.Load() == 0 {
		t.Error("Expected at least one re-election attempt")
	}

	if err := elector.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestElector_ReelectionFailureLosesLeadership(t *testing.T) {
	store := newCountingStore()

	var lost, errs atomic.Int32
	cfg := fastConfig()
	// Long enough that the lapsed lease cannot be won back during the test.
	cfg.LeaderTTL = time.Second
	cfg.OnError = func(err error) { errs.Add(1) }

	elector := NewElector(store, "instance-1", cfg, Callbacks{
		OnLostLeadership: func(ctx context.Context) { lost.Add(1) },
	})

	ctx := context.Background()
	if err := elector.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if !elector.IsLeader() {
		t.Fatal("Expected to be leader")
	}

	store.reelectErr.Store(errors.New("connection reset"))
	time.Sleep(60 * time.Millisecond)

	if elector.IsLeader() {
		t.Error("Expected leadership to be lost")
	}
	if lost.Load() == 0 || errs.Load() == 0 {
		t.Errorf("OnLostLeadership = %d, OnError = %d; want both called", lost.Load(), errs.Load())
	}

	if err := elector.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestElector_ElectionError(t *testing.T) {
	store := newCountingStore()
	store.electErr = errors.New("database down")

	var errs atomic.Int32
	cfg := fastConfig()
	cfg.OnError = func(err error) { errs.Add(1) }

	elector := NewElector(store, "", cfg, Callbacks{})
	if elector.InstanceID() == "" {
		t.Error("empty instance ID should be generated")
	}

	ctx := context.Background()
	if err := elector.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := elector.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if elector.IsLeader() {
		t.Error("Expected not to be leader")
	}
	if errs.Load() == 0 {
		t.Error("Expected OnError to be called")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.LeaderTTL != DefaultLeaderTTL {
		t.Errorf("LeaderTTL = %v, want %v", config.LeaderTTL, DefaultLeaderTTL)
	}

	if config.ElectionPeriod != DefaultElectionPeriod {
		t.Errorf("ElectionPeriod = %v, want %v", config.ElectionPeriod, DefaultElectionPeriod)
	}

	if config.ReelectionDelay != DefaultReelectionDelay {
		t.Errorf("ReelectionDelay = %v, want %v", config.ReelectionDelay, DefaultReelectionDelay)
	}
}
