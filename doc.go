// Package contextpg keeps long-running conversations inside a model's
// context window.
//
// contextpg persists every turn (PostgreSQL via pgx/v5 or database/sql, or
// in memory), and when a session's usage crosses 75% of the model's window
// it summarizes the older turns into a single continuation summary, retiring
// them in place. The newest turns that fit 20% of the window stay verbatim.
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, connString)
//	drv := pgxv5.New(pool)
//	store := drv.GetStore()
//	_ = store.Migrate(ctx)
//
//	client := anthropic.NewClient()
//	engine, err := contextpg.New(
//	    contextpg.Config{
//	        Store:     store,
//	        Completer: llm.NewAnthropic(&client),
//	    },
//	    contextpg.WithSystemPrompt("You are a helpful coding assistant"),
//	    contextpg.WithLogger(slog.Default()),
//	)
//
// Each turn:
//
//	turn, err := engine.ProcessTurn(ctx, sessionID, userText, model)
//	if err != nil {
//	    return err
//	}
//	resp, err := generator.Generate(ctx, llm.GenerateRequest{Model: model, Messages: turn.Messages})
//	if err != nil {
//	    return err
//	}
//	err = engine.RecordResponse(ctx, sessionID, resp.Text, resp.Usage)
//
// # Compaction outcomes
//
// TurnResult.Compaction reports what happened through a tagged Outcome.
// A failed summarization never fails the turn: the history is returned
// uncompacted and the next turn tries again once the cooldown allows.
// Storage errors are returned and never retried.
//
// Manual control:
//
//	engine, _ := contextpg.New(cfg, contextpg.WithAutoCompaction(false))
//	stats, _ := engine.Stats(ctx, sessionID, model)
//	if stats.NeedsCompaction {
//	    result, _ := engine.Compact(ctx, sessionID, model)
//	}
//
// # Concurrency
//
// Turns on the same session are serialized inside one Engine. Across
// processes, the commit rejects a compaction computed from a stale read
// and the attempt reports OutcomeConflict.
package contextpg
