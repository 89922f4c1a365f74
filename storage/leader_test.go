package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/youssefsiam38/contextpg/driver"
	"github.com/youssefsiam38/contextpg/storage"
)

// exerciseLeaderStore walks one lease through election, renewal, takeover
// after expiry, and resignation.
func exerciseLeaderStore(t *testing.T, s storage.LeaderStore) {
	t.Helper()
	ctx := context.Background()
	ttl := 30 * time.Second
	now := baseTime

	elect := func(id string, at time.Time) bool {
		t.Helper()
		ok, err := s.LeaderAttemptElect(ctx, &storage.LeaderElectParams{LeaderID: id, TTL: ttl, Now: at})
		if err != nil {
			t.Fatalf("LeaderAttemptElect(%s) error = %v", id, err)
		}
		return ok
	}
	reelect := func(id string, at time.Time) bool {
		t.Helper()
		ok, err := s.LeaderAttemptReelect(ctx, &storage.LeaderElectParams{LeaderID: id, TTL: ttl, Now: at})
		if err != nil {
			t.Fatalf("LeaderAttemptReelect(%s) error = %v", id, err)
		}
		return ok
	}
	current := func(at time.Time) string {
		t.Helper()
		leader, err := s.LeaderGetCurrent(ctx, at)
		if err != nil {
			t.Fatalf("LeaderGetCurrent() error = %v", err)
		}
		if leader == nil {
			return ""
		}
		return leader.LeaderID
	}

	if got := current(now); got != "" {
		t.Fatalf("leader before election = %q", got)
	}
	if !elect("a", now) {
		t.Fatal("a should win a free lease")
	}
	if elect("b", now.Add(time.Second)) {
		t.Error("b must not take a held lease")
	}
	if reelect("b", now.Add(time.Second)) {
		t.Error("b must not renew a's lease")
	}
	if !reelect("a", now.Add(20*time.Second)) {
		t.Error("a should renew its lease")
	}
	if got := current(now.Add(40 * time.Second)); got != "a" {
		t.Errorf("leader after renewal = %q, want a", got)
	}

	// The renewed lease runs out at +50s.
	if !elect("b", now.Add(51*time.Second)) {
		t.Fatal("b should take an expired lease")
	}
	if reelect("a", now.Add(52*time.Second)) {
		t.Error("a must not renew after losing the lease")
	}

	if err := s.LeaderResign(ctx, "a"); err != nil {
		t.Fatalf("LeaderResign(a) error = %v", err)
	}
	if got := current(now.Add(52 * time.Second)); got != "b" {
		t.Errorf("resign by non-holder changed leader to %q", got)
	}
	if err := s.LeaderResign(ctx, "b"); err != nil {
		t.Fatalf("LeaderResign(b) error = %v", err)
	}
	if got := current(now.Add(52 * time.Second)); got != "" {
		t.Errorf("leader after resign = %q", got)
	}

	if !elect("c", now.Add(60*time.Second)) {
		t.Fatal("c should win a resigned lease")
	}
	n, err := s.LeaderDeleteExpired(ctx, now.Add(120*time.Second))
	if err != nil {
		t.Fatalf("LeaderDeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("LeaderDeleteExpired() = %d, want 1", n)
	}
}

func TestMemoryStore_Leader(t *testing.T) {
	exerciseLeaderStore(t, storage.NewMemoryStore())
}

func TestIntegration_SQLStore_Leader(t *testing.T) {
	forEachDriver(t, func(t *testing.T, _ driver.Driver, store *storage.SQLStore) {
		exerciseLeaderStore(t, store)
	})
}
