package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/youssefsiam38/contextpg/notifier"
	"github.com/youssefsiam38/contextpg/storage"
)

var watchCommand = &command{
	name:    "watch",
	summary: "Print sessions as they are compacted, from any process sharing the database",
	usage:   "watch [flags]",
	setup: func(fs *pflag.FlagSet) func(ctx context.Context, e *env, args []string) error {
		var only string
		fs.StringVar(&only, "only", "", "print events for this session only")

		return func(ctx context.Context, e *env, args []string) error {
			b, err := openBackend(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer b.close()
			if b.driver == nil {
				return errNeedsPostgres
			}

			n := notifier.FromDriver(b.driver, &notifier.Config{
				OnError:     func(err error) { e.logger.Warn("listener error", "error", err) },
				OnReconnect: func() { e.logger.Info("listener reconnected") },
			})

			events := make(chan *notifier.Event, 64)
			unsubscribe := n.Subscribe(notifier.EventCompaction, func(event *notifier.Event) {
				if only != "" && event.SessionID != only {
					return
				}
				select {
				case events <- event:
				default:
					e.logger.Warn("dropping event; output is behind", "session_id", event.SessionID)
				}
			})
			defer unsubscribe()

			if err := n.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = n.Stop(context.WithoutCancel(ctx)) }()

			fmt.Fprintf(e.stdout, "%sWatching for compactions (Ctrl+C to stop)%s\n", colorDim, colorReset)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event := <-events:
					printEvent(ctx, e.stdout, b.store, event)
				}
			}
		}
	},
}

// printEvent prints the event with the latest audit row of its session.
func printEvent(ctx context.Context, w io.Writer, store storage.Store, event *notifier.Event) {
	ts := event.ReceivedAt.Local().Format("15:04:05")

	history, err := store.CompactionHistory(ctx, event.SessionID)
	if err != nil || len(history) == 0 {
		fmt.Fprintf(w, "%s  %s%s%s compacted\n", ts, colorBold, event.SessionID, colorReset)
		return
	}

	last := history[len(history)-1]
	fmt.Fprintf(w, "%s  %s%s%s compacted %d messages: %d -> %d tokens (%s, %d summarizer tokens)\n",
		ts, colorBold, event.SessionID, colorReset,
		last.RetiredCount, last.TokensBefore, last.TokensAfter,
		last.SummarizerModel, last.Usage.TotalTokens)
}
