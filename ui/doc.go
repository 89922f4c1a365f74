// Package ui provides a read-only web inspector for contextpg sessions.
//
// It shows each session's context usage against the model's window, the
// current trigger decision, the message log (retired messages optionally
// included) and the compaction history. A JSON API exposes the same data.
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	drv := pgxv5.New(pool)
//	store := drv.GetStore()
//
//	compactor, _ := compaction.New(store, llm.NewAnthropic(&client), nil)
//
//	http.Handle("/", ui.Handler(store, compactor.Trigger(), &ui.Config{
//	    Model: "claude-sonnet-4-5",
//	}))
//	http.ListenAndServe(":8080", nil)
//
// # Live events
//
// Set Config.Notifier to stream committed compactions from GET /api/events:
//
//	n := notifier.FromDriver(drv, nil)
//	_ = n.Start(ctx)
//	cfg := &ui.Config{Notifier: n}
//
// # Adding Middleware
//
// The handlers are standard http.Handler values; wrap them as usual:
//
//	http.Handle("/ui/", http.StripPrefix("/ui", authMiddleware(ui.UIHandler(store, trigger, cfg))))
package ui
