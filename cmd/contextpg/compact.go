package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/youssefsiam38/contextpg"
	"github.com/youssefsiam38/contextpg/compaction"
)

var errDryRun = errors.New("summarization is disabled in a dry run")

var compactCommand = &command{
	name:    "compact",
	summary: "Compact a session now, or show its context usage with --dry-run",
	usage:   "compact [session-id] [flags]",
	setup: func(fs *pflag.FlagSet) func(ctx context.Context, e *env, args []string) error {
		var dryRun bool
		fs.BoolVar(&dryRun, "dry-run", false, "report usage and the trigger decision without compacting")

		return func(ctx context.Context, e *env, args []string) error {
			sessionID := sessionArg(e, args)

			b, err := openBackend(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer b.close()

			var completer compaction.Completer = compaction.CompleterFunc(
				func(context.Context, compaction.CompletionRequest) (*compaction.Completion, error) {
					return nil, errDryRun
				})
			if !dryRun {
				if completer, err = newProvider(e.cfg); err != nil {
					return err
				}
			}

			engine, err := newEngine(e.cfg, b.store, completer, e.logger)
			if err != nil {
				return err
			}

			stats, err := engine.Stats(ctx, sessionID, e.cfg.Model)
			if err != nil {
				return err
			}
			printStats(e.stdout, stats)
			if dryRun {
				return nil
			}

			result, err := engine.Compact(ctx, sessionID, e.cfg.Model)
			if err != nil {
				return err
			}
			return printResult(e.stdout, result)
		}
	},
}

func printStats(w io.Writer, s *contextpg.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Session\t%s\n", s.SessionID)
	fmt.Fprintf(tw, "Active messages\t%d (%d summaries, %d retired)\n", s.ActiveMessages, s.SummaryMessages, s.RetiredMessages)
	fmt.Fprintf(tw, "Active tokens\t%d (%d exact, %d estimated)\n", s.ActiveTokens.N, s.ExactTokens, s.EstimatedTokens)
	fmt.Fprintf(tw, "Cached tokens\t%d\n", s.CachedTokens)
	fmt.Fprintf(tw, "Window\t%d (threshold %d, %.1f%% used)\n", s.WindowSize, s.Threshold, s.UsagePercent)
	fmt.Fprintf(tw, "Compactions\t%d\n", s.CompactionCount)
	fmt.Fprintf(tw, "Would trigger\t%t (%s)\n", s.NeedsCompaction, s.Decision.Reason)
	_ = tw.Flush()
}

func printResult(w io.Writer, r *compaction.Result) error {
	switch r.Outcome {
	case compaction.OutcomeCompacted:
		fmt.Fprintf(w, "\n%sCompacted %d messages (kept %d): %d -> %d tokens in %s%s\n",
			colorGreen, r.CompactedCount, r.KeptCount, r.TokensBefore, r.TokensAfter,
			r.Duration.Round(time.Millisecond), colorReset)
		return nil
	case compaction.OutcomeSummarizerFailed, compaction.OutcomeConflict:
		if r.Err == nil {
			return fmt.Errorf("compaction %s", r.Outcome)
		}
		return fmt.Errorf("compaction %s: %w", r.Outcome, r.Err)
	default:
		fmt.Fprintf(w, "\n%sNot compacted: %s%s\n", colorYellow, r.Outcome, colorReset)
		return nil
	}
}
