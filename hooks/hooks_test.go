package hooks

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
}

func TestOnBeforeContext(t *testing.T) {
	r := NewRegistry()
	var got []compaction.ContextMessage

	r.OnBeforeContext(func(ctx context.Context, sessionID string, messages []compaction.ContextMessage) error {
		got = messages
		return nil
	})

	in := []compaction.ContextMessage{{Role: storage.RoleUser, Content: "hi"}}
	if err := r.TriggerBeforeContext(context.Background(), "s", in); err != nil {
		t.Errorf("TriggerBeforeContext returned error: %v", err)
	}
	if len(got) != 1 {
		t.Error("hook was not called with the messages")
	}
}

func TestOnAfterResponse(t *testing.T) {
	r := NewRegistry()
	var capturedUsage *storage.Usage

	r.OnAfterResponse(func(ctx context.Context, sessionID string, msg *storage.Message, usage *storage.Usage) error {
		capturedUsage = usage
		return nil
	})

	usage := &storage.Usage{InputTokens: 10, OutputTokens: 2}
	if err := r.TriggerAfterResponse(context.Background(), "s", &storage.Message{}, usage); err != nil {
		t.Errorf("TriggerAfterResponse returned error: %v", err)
	}
	if capturedUsage != usage {
		t.Error("usage was not passed to hook")
	}
}

func TestOnBeforeCompaction(t *testing.T) {
	r := NewRegistry()
	var capturedSessionID string

	r.OnBeforeCompaction(func(ctx context.Context, sessionID string, decision compaction.Decision) error {
		capturedSessionID = sessionID
		return nil
	})

	err := r.TriggerBeforeCompaction(context.Background(), "session-123", compaction.Decision{Compact: true})
	if err != nil {
		t.Errorf("TriggerBeforeCompaction returned error: %v", err)
	}
	if capturedSessionID != "session-123" {
		t.Errorf("expected sessionID 'session-123', got '%s'", capturedSessionID)
	}
}

func TestOnAfterCompaction(t *testing.T) {
	r := NewRegistry()
	var capturedResult *compaction.Result

	r.OnAfterCompaction(func(ctx context.Context, sessionID string, result *compaction.Result) error {
		capturedResult = result
		return nil
	})

	testResult := &compaction.Result{
		Outcome:      compaction.OutcomeCompacted,
		TokensBefore: 1000,
		TokensAfter:  500,
	}

	if err := r.TriggerAfterCompaction(context.Background(), "s", testResult); err != nil {
		t.Errorf("TriggerAfterCompaction returned error: %v", err)
	}
	if capturedResult != testResult {
		t.Error("result was not passed to hook")
	}
}

func TestHookErrorStopsChain(t *testing.T) {
	r := NewRegistry()
	expectedErr := errors.New("hook error")
	called := []int{}

	r.OnBeforeCompaction(func(ctx context.Context, sessionID string, d compaction.Decision) error {
		called = append(called, 1)
		return nil
	})
	r.OnBeforeCompaction(func(ctx context.Context, sessionID string, d compaction.Decision) error {
		called = append(called, 2)
		return expectedErr
	})
	r.OnBeforeCompaction(func(ctx context.Context, sessionID string, d compaction.Decision) error {
		called = append(called, 3)
		return nil
	})

	err := r.TriggerBeforeCompaction(context.Background(), "s", compaction.Decision{})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if len(called) != 2 {
		t.Errorf("expected 2 hooks to be called before error, got %d", len(called))
	}
}

func TestConcurrentRegistrationAndTrigger(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	calls := 0

	wg.Add(200)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			r.OnAfterResponse(func(ctx context.Context, sessionID string, msg *storage.Message, usage *storage.Usage) error {
				mu.Lock()
				calls++
				mu.Unlock()
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = r.TriggerAfterResponse(context.Background(), "s", &storage.Message{}, nil)
		}()
	}
	wg.Wait()

	calls = 0
	if err := r.TriggerAfterResponse(context.Background(), "s", &storage.Message{}, nil); err != nil {
		t.Fatalf("TriggerAfterResponse returned error: %v", err)
	}
	if calls != 100 {
		t.Errorf("expected 100 calls after registration settled, got %d", calls)
	}
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHooks(log.New(&buf, "", 0))
	r := NewRegistry()
	h.Register(r)

	ctx := context.Background()
	_ = r.TriggerBeforeCompaction(ctx, "s1", compaction.Decision{CurrentTokens: 3000, WindowSize: 2500})
	_ = r.TriggerAfterCompaction(ctx, "s1", &compaction.Result{
		Outcome:        compaction.OutcomeCompacted,
		TokensBefore:   3000,
		TokensAfter:    750,
		TokensFreed:    2250,
		CompactedCount: 9,
		KeptCount:      1,
	})
	_ = r.TriggerAfterCompaction(ctx, "s1", &compaction.Result{
		Outcome: compaction.OutcomeSummarizerFailed,
		Err:     errors.New("timeout"),
	})

	out := buf.String()
	for _, want := range []string{
		"[contextpg] Starting context compaction for session s1 (3000/2500 tokens, 120% of window)",
		"3000 -> 750 tokens (75.0% reduction, 9 messages retired, 1 kept)",
		"Compaction skipped for session s1: summarizer_failed: timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMetricsHooks(t *testing.T) {
	metrics := map[string]float64{}
	h := NewMetricsHooks(func(name string, value float64, tags map[string]string) {
		metrics[name] = value
	})
	r := NewRegistry()
	h.Register(r)

	ctx := context.Background()
	_ = r.TriggerAfterResponse(ctx, "s", &storage.Message{}, &storage.Usage{InputTokens: 100, OutputTokens: 20})
	_ = r.TriggerAfterCompaction(ctx, "s", &compaction.Result{
		Outcome:      compaction.OutcomeCompacted,
		TokensBefore: 1000,
		TokensAfter:  250,
		TokensFreed:  750,
	})

	want := map[string]float64{
		"contextpg.tokens.total":                120,
		"contextpg.compaction.tokens_before":    1000,
		"contextpg.compaction.tokens_after":     250,
		"contextpg.compaction.reduction_pct":    75,
		"contextpg.compaction.attempts":         1,
		"contextpg.compaction.retired_messages": 0,
	}
	for name, v := range want {
		if metrics[name] != v {
			t.Errorf("%s = %v, want %v", name, metrics[name], v)
		}
	}
}
