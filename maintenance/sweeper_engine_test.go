package maintenance_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/youssefsiam38/contextpg"
	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/maintenance"
	"github.com/youssefsiam38/contextpg/storage"
)

func TestSweeper_CompactsThroughEngine(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()

	completer := compaction.CompleterFunc(func(ctx context.Context, req compaction.CompletionRequest) (*compaction.Completion, error) {
		return &compaction.Completion{Text: "<summary>The user planned a trip.</summary>"}, nil
	})
	engine, err := contextpg.New(contextpg.Config{Store: store, Completer: completer},
		contextpg.WithClock(func() time.Time { return now }),
		contextpg.WithContextWindow("test-model", 2500),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// 3000 estimated tokens against a 1875 token threshold, last written an
	// hour ago.
	seed := func(sessionID string, n int, at time.Time) {
		if _, err := store.EnsureSession(ctx, sessionID, at); err != nil {
			t.Fatalf("EnsureSession() error = %v", err)
		}
		for i := 0; i < n; i++ {
			role := storage.RoleUser
			if i%2 == 1 {
				role = storage.RoleAssistant
			}
			if err := store.AppendMessage(ctx, &storage.Message{
				SessionID: sessionID,
				Role:      role,
				Content:   strings.Repeat("w", 1200),
				CreatedAt: at,
			}); err != nil {
				t.Fatalf("AppendMessage() error = %v", err)
			}
		}
	}
	seed("idle", 10, now.Add(-time.Hour))
	seed("small", 2, now.Add(-time.Hour))

	cfg := maintenance.DefaultSweeperConfig("test-model")
	cfg.Now = func() time.Time { return now }
	sweeper, err := maintenance.NewSweeper(store, engine, cfg)
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}

	result := sweeper.RunOnce(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("Errors = %v", result.Errors)
	}
	if result.Compacted != 1 {
		t.Fatalf("Compacted = %d, want 1", result.Compacted)
	}

	history, err := store.CompactionHistory(ctx, "idle")
	if err != nil {
		t.Fatalf("CompactionHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history = %d events, want 1", len(history))
	}

	// Compaction rewrote the session, so it is neither idle nor over threshold.
	again := sweeper.RunOnce(ctx)
	if again.Compacted != 0 {
		t.Errorf("second sweep Compacted = %d, want 0", again.Compacted)
	}
}
