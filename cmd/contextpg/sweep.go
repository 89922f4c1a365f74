package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/leadership"
	"github.com/youssefsiam38/contextpg/maintenance"
	"github.com/youssefsiam38/contextpg/storage"
)

var sweepCommand = &command{
	name:    "sweep",
	summary: "Compact idle sessions over their threshold while this process holds the leader lease",
	usage:   "sweep [flags]",
	setup: func(fs *pflag.FlagSet) func(ctx context.Context, e *env, args []string) error {
		var (
			once      bool
			interval  time.Duration
			idle      time.Duration
			batchSize int
		)
		fs.BoolVar(&once, "once", false, "sweep once and exit, without leader election")
		fs.DurationVar(&interval, "interval", maintenance.DefaultSweepInterval, "time between sweeps")
		fs.DurationVar(&idle, "idle", maintenance.DefaultIdleAfter, "how long a session must go without writes")
		fs.IntVar(&batchSize, "batch", maintenance.DefaultSweepBatchSize, "sessions scanned per sweep")

		return func(ctx context.Context, e *env, args []string) error {
			b, err := openBackend(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer b.close()

			completer, err := newProvider(e.cfg)
			if err != nil {
				return err
			}
			engine, err := newEngine(e.cfg, b.store, completer, e.logger)
			if err != nil {
				return err
			}

			sweeper, err := maintenance.NewSweeper(b.store, engine, &maintenance.SweeperConfig{
				Model:     e.cfg.Model,
				Interval:  interval,
				IdleAfter: idle,
				BatchSize: batchSize,
				OnCompacted: func(sessionID string, r *compaction.Result) {
					e.logger.Info("session compacted",
						"session_id", sessionID,
						"messages", r.CompactedCount,
						"tokens_before", r.TokensBefore,
						"tokens_after", r.TokensAfter)
				},
				OnError: func(err error) {
					e.logger.Error("sweep failed", "error", err)
				},
			})
			if err != nil {
				return err
			}

			if once {
				result := sweeper.RunOnce(ctx)
				printSweep(e.stdout, result)
				if len(result.Errors) > 0 {
					return fmt.Errorf("sweep finished with %d errors", len(result.Errors))
				}
				return nil
			}

			leases, ok := b.store.(storage.LeaderStore)
			if !ok {
				return fmt.Errorf("store %T does not support leader election", b.store)
			}
			return runLeaderSweep(ctx, e, leases, sweeper)
		}
	},
}

// runLeaderSweep runs the sweeper only while this process holds the leader
// lease, until ctx is cancelled.
func runLeaderSweep(ctx context.Context, e *env, leases storage.LeaderStore, sweeper *maintenance.Sweeper) error {
	elector := leadership.NewElector(leases, "", &leadership.Config{
		OnError: func(err error) {
			e.logger.Warn("leader election failed", "error", err)
		},
	}, leadership.Callbacks{
		OnBecameLeader: func(ctx context.Context) {
			e.logger.Info("became leader, starting sweeper")
			if err := sweeper.Start(ctx); err != nil {
				e.logger.Error("failed to start sweeper", "error", err)
			}
		},
		OnLostLeadership: func(context.Context) {
			e.logger.Info("lost leadership, stopping sweeper")
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sweeper.Stop(stopCtx); err != nil && err != maintenance.ErrNotStarted {
				e.logger.Error("failed to stop sweeper", "error", err)
			}
		},
	})

	if err := elector.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%sSweeping as %s; waiting for the leader lease (Ctrl+C to stop)%s\n",
		colorCyan, elector.InstanceID(), colorReset)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return elector.Stop(stopCtx)
}

func printSweep(w io.Writer, r *maintenance.SweepResult) {
	fmt.Fprintf(w, "Scanned %d sessions, %d idle, compacted %d (%d tokens freed)\n",
		r.Scanned, r.Idle, r.Compacted, r.TokensFreed)
	if r.ExpiredLeadersCleaned > 0 {
		fmt.Fprintf(w, "Cleared %d expired leader lease\n", r.ExpiredLeadersCleaned)
	}
	for _, err := range r.Errors {
		fmt.Fprintf(w, "%s  %v%s\n", colorRed, err, colorReset)
	}
}
