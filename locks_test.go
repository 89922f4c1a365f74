package contextpg

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSessionLocks_Serializes(t *testing.T) {
	locks := newSessionLocks()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.acquire(ctx, "s")
			if err != nil {
				t.Errorf("acquire() error = %v", err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
	if n := locks.held(); n != 0 {
		t.Errorf("held() = %d after all releases, want 0", n)
	}
}

func TestSessionLocks_IndependentSessions(t *testing.T) {
	locks := newSessionLocks()
	ctx := context.Background()

	releaseA, err := locks.acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire(a) error = %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	releaseB, err := locks.acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire(b) blocked by another session: %v", err)
	}
	releaseB()

	if n := locks.held(); n != 1 {
		t.Errorf("held() = %d, want 1", n)
	}
}

func TestSessionLocks_ContextCancelled(t *testing.T) {
	locks := newSessionLocks()

	release, err := locks.acquire(context.Background(), "s")
	if err != nil {
		t.Fatalf("acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.acquire(ctx, "s"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("acquire() error = %v, want DeadlineExceeded", err)
	}

	release()
	if n := locks.held(); n != 0 {
		t.Errorf("held() = %d, want 0", n)
	}

	// The slot is free again.
	release, err = locks.acquire(context.Background(), "s")
	if err != nil {
		t.Fatalf("acquire() after release error = %v", err)
	}
	release()
}
