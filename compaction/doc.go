// Package compaction keeps a long-running session within its model's
// context window.
//
// When accumulated history crosses TriggerRatio of the window, older turns
// are summarized into a single system message and retired in place. The
// newest turns that fit TargetRatio of the window are kept verbatim. The
// gap between the two ratios keeps compaction from re-triggering on the
// next turn.
//
// # Usage
//
// Create a Compactor over a store and a summarization capability:
//
//	compactor, err := compaction.New(store, llm.NewAnthropic(client), nil,
//	    compaction.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    return err
//	}
//
//	result, err := compactor.CompactIfNeeded(ctx, sessionID, "claude-sonnet-4-5", currentTokens)
//	if err != nil {
//	    return err // storage failure, never retried
//	}
//	if result.Compacted() {
//	    log.Printf("freed %d tokens", result.TokensFreed)
//	}
//
// Every non-storage outcome is reported through Result.Outcome. A failed
// or timed out summarization leaves the store untouched and the turn
// proceeds on the uncompacted history.
//
// # Components
//
//   - EstimateTokens and TokenCount: ceil(chars/4) heuristic, tagged exact or estimated.
//   - Registry: model identifier to context window, longest substring match wins.
//   - Trigger: threshold, cooldown and minimum-message guards.
//   - Partitioner: greedy newest-first retention under the target budget.
//   - Summarizer: transcript rendering, prompt, response parsing.
//   - Assemble: active messages to context, merging system messages.
//
// # Thread Safety
//
// The Compactor holds no per-session state. Attempts on the same session
// must be serialized by the caller; storage.Store.CommitCompaction rejects
// a transition computed from a stale read with storage.ErrConcurrentCompaction.
package compaction
