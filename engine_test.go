package contextpg

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/hooks"
	"github.com/youssefsiam38/contextpg/storage"
)

const testModel = "test-model"

type stubCompleter struct {
	calls atomic.Int32
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, req compaction.CompletionRequest) (*compaction.Completion, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &compaction.Completion{
		Text:  "<summary>Earlier the user set up the project.</summary>",
		Usage: &storage.Usage{InputTokens: 2000, OutputTokens: 40},
	}, nil
}

type engineFixture struct {
	engine    *Engine
	store     *storage.MemoryStore
	completer *stubCompleter
	now       time.Time
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:     storage.NewMemoryStore(),
		completer: &stubCompleter{},
		now:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	base := []Option{
		WithClock(func() time.Time { return f.now }),
		WithContextWindow(testModel, 2500),
	}
	engine, err := New(Config{Store: f.store, Completer: f.completer}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.engine = engine
	return f
}

// seed appends n alternating messages of ~tokens estimated tokens each.
func (f *engineFixture) seed(t *testing.T, sessionID string, n, tokens int) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.engine.EnsureSession(ctx, sessionID); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	for i := 0; i < n; i++ {
		role := storage.RoleUser
		if i%2 == 1 {
			role = storage.RoleAssistant
		}
		if err := f.store.AppendMessage(ctx, &storage.Message{
			SessionID: sessionID,
			Role:      role,
			Content:   strings.Repeat("w", tokens*4),
			CreatedAt: f.now,
		}); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		opts []Option
	}{
		{"missing store", Config{Completer: &stubCompleter{}}, nil},
		{"missing completer", Config{Store: storage.NewMemoryStore()}, nil},
		{"bad compaction config", Config{
			Store:      storage.NewMemoryStore(),
			Completer:  &stubCompleter{},
			Compaction: &compaction.Config{TriggerRatio: 0.3, TargetRatio: 0.5},
		}, nil},
		{"nil logger", Config{Store: storage.NewMemoryStore(), Completer: &stubCompleter{}}, []Option{WithLogger(nil)}},
		{"bad window", Config{Store: storage.NewMemoryStore(), Completer: &stubCompleter{}}, []Option{WithContextWindow("x", 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.opts...); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestProcessTurn_FirstTurn(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, WithSystemPrompt("You are terse."))

	turn, err := f.engine.ProcessTurn(ctx, "s1", "hello there", testModel)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	want := []compaction.ContextMessage{
		{Role: storage.RoleSystem, Content: "You are terse."},
		{Role: storage.RoleUser, Content: "hello there"},
	}
	if len(turn.Messages) != len(want) {
		t.Fatalf("messages = %+v", turn.Messages)
	}
	for i := range want {
		if turn.Messages[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, turn.Messages[i], want[i])
		}
	}
	if turn.Compaction.Outcome != compaction.OutcomeNotTriggered {
		t.Errorf("Outcome = %s", turn.Compaction.Outcome)
	}
	if turn.UserMessage.Seq != 2 {
		t.Errorf("user seq = %d, want 2", turn.UserMessage.Seq)
	}

	session, _ := f.store.GetSession(ctx, "s1")
	if session.CumulativeTokens != turn.Tokens || turn.Tokens == 0 {
		t.Errorf("CumulativeTokens = %d, turn tokens = %d", session.CumulativeTokens, turn.Tokens)
	}

	// The directive is only seeded once.
	if _, err := f.engine.ProcessTurn(ctx, "s1", "again", testModel); err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	active, _ := f.store.ActiveMessages(ctx, "s1")
	systems := 0
	for _, m := range active {
		if m.Role == storage.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("system messages = %d, want 1", systems)
	}
}

func TestProcessTurn_EmptyInput(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.ProcessTurn(context.Background(), "s", "  \n", testModel)
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("error = %v, want ErrEmptyInput", err)
	}
}

func TestProcessTurn_Compacts(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seed(t, "big", 9, 300)

	turn, err := f.engine.ProcessTurn(ctx, "big", strings.Repeat("q", 1200), testModel)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if !turn.Compaction.Compacted() {
		t.Fatalf("Outcome = %s (err=%v)", turn.Compaction.Outcome, turn.Compaction.Err)
	}
	if turn.Tokens != 3000 {
		t.Errorf("Tokens = %d, want 3000", turn.Tokens)
	}

	// The summary leads, then the newest user turn kept verbatim.
	if len(turn.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(turn.Messages))
	}
	if turn.Messages[0].Role != storage.RoleSystem || turn.Messages[1].Role != storage.RoleUser {
		t.Errorf("unexpected roles: %+v", turn.Messages)
	}
	if !compaction.IsSummaryContent(turn.Messages[0].Content) {
		t.Error("summary message missing prefix")
	}

	session, _ := f.store.GetSession(ctx, "big")
	if session.CumulativeTokens != turn.Compaction.TokensAfter {
		t.Errorf("CumulativeTokens = %d, want %d", session.CumulativeTokens, turn.Compaction.TokensAfter)
	}
}

func TestProcessTurn_SummarizerFailureProceeds(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.completer.err = errors.New("overloaded")
	f.seed(t, "fail", 9, 300)

	turn, err := f.engine.ProcessTurn(ctx, "fail", strings.Repeat("q", 1200), testModel)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if turn.Compaction.Outcome != compaction.OutcomeSummarizerFailed {
		t.Errorf("Outcome = %s, want summarizer_failed", turn.Compaction.Outcome)
	}
	if len(turn.Messages) != 10 {
		t.Errorf("messages = %d, want all 10 uncompacted", len(turn.Messages))
	}

	all, _ := f.store.Messages(ctx, "fail")
	for _, m := range all {
		if m.Retired {
			t.Fatal("no message may be retired after a failed summarization")
		}
	}
	session, _ := f.store.GetSession(ctx, "fail")
	if session.CumulativeTokens != 3000 {
		t.Errorf("CumulativeTokens = %d, want 3000", session.CumulativeTokens)
	}
}

func TestProcessTurn_AutoCompactionDisabled(t *testing.T) {
	f := newEngineFixture(t, WithAutoCompaction(false))
	f.seed(t, "manual", 9, 300)

	turn, err := f.engine.ProcessTurn(context.Background(), "manual", strings.Repeat("q", 1200), testModel)
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if turn.Compaction.Outcome != compaction.OutcomeNotTriggered || !turn.Compaction.Decision.Compact {
		t.Errorf("want a firing decision that was not acted on, got %+v", turn.Compaction)
	}
	if f.completer.calls.Load() != 0 {
		t.Error("summarizer called with auto compaction disabled")
	}
}

func TestProcessTurn_SerializesCompaction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seed(t, "race", 10, 300)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.ProcessTurn(ctx, "race", "next step please", testModel); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	if got := f.completer.calls.Load(); got != 1 {
		t.Errorf("summarizer calls = %d, want exactly 1", got)
	}
	history, _ := f.store.CompactionHistory(ctx, "race")
	if len(history) != 1 {
		t.Errorf("compactions = %d, want 1", len(history))
	}
	if n := f.engine.locks.held(); n != 0 {
		t.Errorf("lock entries left = %d, want 0", n)
	}
}

func TestRecordResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("with usage", func(t *testing.T) {
		f := newEngineFixture(t)
		if _, err := f.engine.ProcessTurn(ctx, "r", "question", testModel); err != nil {
			t.Fatal(err)
		}
		if err := f.engine.RecordResponse(ctx, "r", "answer", &storage.Usage{InputTokens: 120, OutputTokens: 8}); err != nil {
			t.Fatalf("RecordResponse() error = %v", err)
		}

		active, _ := f.store.ActiveMessages(ctx, "r")
		last := active[len(active)-1]
		if last.Role != storage.RoleAssistant || last.TokenCount == nil || *last.TokenCount != 8 {
			t.Errorf("assistant message = %+v", last)
		}
		session, _ := f.store.GetSession(ctx, "r")
		if session.CumulativeTokens != 128 {
			t.Errorf("CumulativeTokens = %d, want 128", session.CumulativeTokens)
		}
	})

	t.Run("without usage", func(t *testing.T) {
		f := newEngineFixture(t)
		if _, err := f.engine.ProcessTurn(ctx, "r", "12345678", testModel); err != nil {
			t.Fatal(err)
		}
		if err := f.engine.RecordResponse(ctx, "r", "1234", nil); err != nil {
			t.Fatalf("RecordResponse() error = %v", err)
		}
		session, _ := f.store.GetSession(ctx, "r")
		if session.CumulativeTokens != 3 {
			t.Errorf("CumulativeTokens = %d, want 3 (estimated)", session.CumulativeTokens)
		}
	})

	t.Run("blank is not persisted", func(t *testing.T) {
		f := newEngineFixture(t)
		if _, err := f.engine.ProcessTurn(ctx, "r", "hi", testModel); err != nil {
			t.Fatal(err)
		}
		if err := f.engine.RecordResponse(ctx, "r", "   ", nil); err != nil {
			t.Fatalf("RecordResponse() error = %v", err)
		}
		all, _ := f.store.Messages(ctx, "r")
		if len(all) != 1 {
			t.Errorf("messages = %d, want 1", len(all))
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newEngineFixture(t)
		err := f.engine.RecordResponse(ctx, "ghost", "answer", nil)
		if !IsNotFound(err) {
			t.Errorf("error = %v, want session not found", err)
		}
	})
}

func TestEnsureSystemPrompt(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)

	added, err := f.engine.EnsureSystemPrompt(ctx, "p", "directive")
	if err != nil || !added {
		t.Fatalf("first EnsureSystemPrompt() = %v, %v", added, err)
	}
	added, err = f.engine.EnsureSystemPrompt(ctx, "p", "other directive")
	if err != nil || added {
		t.Errorf("second EnsureSystemPrompt() = %v, %v, want false", added, err)
	}
}

func TestShouldCompactAndStats(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seed(t, "st", 4, 500)

	d, err := f.engine.ShouldCompact(ctx, "st", testModel)
	if err != nil {
		t.Fatalf("ShouldCompact() error = %v", err)
	}
	if d.Compact || d.Reason != compaction.ReasonTooFewMessages {
		t.Errorf("decision = %+v, want too few messages", d)
	}

	if err := f.engine.RecordResponse(ctx, "st", "ok", &storage.Usage{InputTokens: 2000, OutputTokens: 1}); err != nil {
		t.Fatal(err)
	}

	stats, err := f.engine.Stats(ctx, "st", testModel)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ActiveMessages != 5 || stats.ExactTokens != 1 || stats.EstimatedTokens != 2000 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ActiveTokens.Exact {
		t.Error("mixed counts should be reported as estimated")
	}
	if stats.CachedTokens != 2001 || stats.WindowSize != 2500 || stats.Threshold != 1875 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.NeedsCompaction {
		t.Errorf("decision = %+v, want compaction", stats.Decision)
	}

	if _, err := f.engine.Stats(ctx, "missing", testModel); !IsNotFound(err) {
		t.Errorf("Stats(missing) error = %v", err)
	}
}

func TestCompact_RunsHooks(t *testing.T) {
	ctx := context.Background()
	registry := hooks.NewRegistry()
	var before, after []string
	registry.OnBeforeCompaction(func(ctx context.Context, sessionID string, d compaction.Decision) error {
		before = append(before, sessionID)
		return nil
	})
	registry.OnAfterCompaction(func(ctx context.Context, sessionID string, r *compaction.Result) error {
		after = append(after, string(r.Outcome))
		return errors.New("ignored")
	})

	f := newEngineFixture(t, WithHooks(registry))
	f.seed(t, "h", 10, 100)

	result, err := f.engine.Compact(ctx, "h", testModel)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if !result.Compacted() {
		t.Fatalf("Outcome = %s", result.Outcome)
	}
	if len(before) != 1 || len(after) != 1 || after[0] != string(compaction.OutcomeCompacted) {
		t.Errorf("hooks before=%v after=%v", before, after)
	}

	// Within the cooldown nothing runs.
	result, err = f.engine.Compact(ctx, "h", testModel)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if result.Decision.Reason != compaction.ReasonCooldown || len(before) != 1 {
		t.Errorf("second compact = %+v, before hooks = %d", result, len(before))
	}
}

func TestCompact_BeforeHookCancels(t *testing.T) {
	registry := hooks.NewRegistry()
	registry.OnBeforeCompaction(func(ctx context.Context, sessionID string, d compaction.Decision) error {
		return errors.New("maintenance window")
	})

	f := newEngineFixture(t, WithHooks(registry))
	f.seed(t, "veto", 10, 300)

	_, err := f.engine.Compact(context.Background(), "veto", testModel)
	if !errors.Is(err, ErrHookFailed) {
		t.Errorf("error = %v, want ErrHookFailed", err)
	}
	if f.completer.calls.Load() != 0 {
		t.Error("summarizer must not run after a before-hook veto")
	}
}

func TestRefreshTokenCount(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.seed(t, "rf", 3, 10)
	_ = f.store.UpdateTokenCount(ctx, "rf", 99999, f.now)

	got, err := f.engine.RefreshTokenCount(ctx, "rf")
	if err != nil {
		t.Fatalf("RefreshTokenCount() error = %v", err)
	}
	if got != 30 {
		t.Errorf("RefreshTokenCount() = %d, want 30", got)
	}
	session, _ := f.store.GetSession(ctx, "rf")
	if session.CumulativeTokens != 30 {
		t.Errorf("CumulativeTokens = %d, want 30", session.CumulativeTokens)
	}
}
