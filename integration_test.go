package contextpg

import (
	"context"
	"strings"
	"testing"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/driver/pgxv5"
	"github.com/youssefsiam38/contextpg/internal/testutil"
	"github.com/youssefsiam38/contextpg/storage"
)

func TestIntegration_EngineCompactsOnPostgres(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	store := pgxv5.New(db.Pool).GetStore()
	completer := &stubCompleter{}
	engine, err := New(Config{Store: store, Completer: completer},
		WithContextWindow(testModel, 2500),
		WithSystemPrompt("Be brief."),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const sessionID = "integration-session"
	for i := 0; i < 8; i++ {
		turn, err := engine.ProcessTurn(ctx, sessionID, strings.Repeat("u", 1000), testModel)
		if err != nil {
			t.Fatalf("turn %d: ProcessTurn() error = %v", i, err)
		}
		if turn.Compaction.Compacted() {
			break
		}
		if err := engine.RecordResponse(ctx, sessionID, strings.Repeat("a", 200), nil); err != nil {
			t.Fatalf("turn %d: RecordResponse() error = %v", i, err)
		}
	}

	if completer.calls.Load() != 1 {
		t.Fatalf("summarizer calls = %d, want 1", completer.calls.Load())
	}

	history, err := store.CompactionHistory(ctx, sessionID)
	if err != nil {
		t.Fatalf("CompactionHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("compaction events = %d, want 1", len(history))
	}

	all, err := store.Messages(ctx, sessionID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	retired := 0
	for _, m := range all {
		if m.Retired {
			retired++
			if m.Role == storage.RoleSystem && !m.IsSummary {
				t.Error("the pinned directive must not be retired")
			}
		}
	}
	if retired != history[0].RetiredCount {
		t.Errorf("retired = %d, event says %d", retired, history[0].RetiredCount)
	}

	msgs, err := engine.GetMessagesForContext(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetMessagesForContext() error = %v", err)
	}
	if msgs[0].Role != storage.RoleSystem || !strings.HasPrefix(msgs[0].Content, "Be brief.") {
		t.Errorf("first message = %+v, want merged directive", msgs[0])
	}
	if !strings.Contains(msgs[0].Content, compaction.SystemSeparator) {
		t.Error("directive and summary should be merged")
	}
}
