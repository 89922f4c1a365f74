package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/notifier"
	"github.com/youssefsiam38/contextpg/ui"
)

const shutdownTimeout = 10 * time.Second

var inspectCommand = &command{
	name:    "inspect",
	summary: "Serve the read-only session inspector (HTML and JSON)",
	usage:   "inspect [flags]",
	setup: func(fs *pflag.FlagSet) func(ctx context.Context, e *env, args []string) error {
		var addr, basePath string
		fs.StringVar(&addr, "addr", "", "listen address (default inspector.addr)")
		fs.StringVar(&basePath, "base-path", "", "URL prefix the inspector is mounted under")

		return func(ctx context.Context, e *env, args []string) error {
			if fs.Changed("addr") {
				e.cfg.Inspector.Addr = addr
			}
			if fs.Changed("base-path") {
				e.cfg.Inspector.BasePath = basePath
			}

			b, err := openBackend(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer b.close()

			uiCfg := &ui.Config{
				BasePath: strings.TrimSuffix(e.cfg.Inspector.BasePath, "/"),
				Model:    e.cfg.Model,
				Logger:   e.logger,
			}

			// Live events need LISTEN; the memory backend serves pages only.
			if b.driver != nil {
				n := notifier.FromDriver(b.driver, &notifier.Config{
					OnError: func(err error) { e.logger.Warn("notifier error", "error", err) },
				})
				if err := n.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = n.Stop(context.WithoutCancel(ctx)) }()
				uiCfg.Notifier = n
			}

			trigger := compaction.NewTrigger(e.cfg.CompactionConfig(), e.cfg.Registry())
			handler := ui.Handler(b.store, trigger, uiCfg)

			mux := http.NewServeMux()
			if uiCfg.BasePath == "" {
				mux.Handle("/", handler)
			} else {
				mux.Handle(uiCfg.BasePath+"/", http.StripPrefix(uiCfg.BasePath, handler))
			}

			return serve(ctx, e, &http.Server{
				Addr:              e.cfg.Inspector.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			})
		}
	},
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, e *env, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("inspector listening", "addr", srv.Addr)
		fmt.Fprintf(e.stdout, "Inspector at http://localhost%s%s/\n", srv.Addr, strings.TrimSuffix(e.cfg.Inspector.BasePath, "/"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
