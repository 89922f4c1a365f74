package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/contextpg"
	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/driver"
	"github.com/youssefsiam38/contextpg/driver/databasesql"
	"github.com/youssefsiam38/contextpg/driver/pgxv5"
	"github.com/youssefsiam38/contextpg/hooks"
	"github.com/youssefsiam38/contextpg/llm"
	"github.com/youssefsiam38/contextpg/storage"
)

// errNeedsPostgres is returned when a command that needs the database
// runs on the memory backend.
var errNeedsPostgres = errors.New("this command requires a PostgreSQL driver (pgx or sql)")

// backend is an opened storage backend.
type backend struct {
	store storage.Store

	// sql and driver are nil on the memory backend.
	sql    *storage.SQLStore
	driver driver.Driver

	close func()
}

// openBackend connects to the configured database and, when enabled,
// applies pending migrations.
func openBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*backend, error) {
	var b backend

	switch cfg.Database.Driver {
	case DriverMemory:
		b.store = storage.NewMemoryStore()
		b.close = func() {}
		logger.Warn("using the in-memory store; nothing is persisted")
		return &b, nil

	case DriverPgx:
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		drv := pgxv5.New(pool)
		b.driver, b.sql, b.close = drv, drv.GetStore(sqlStoreOptions(cfg)...), pool.Close

	case DriverSQL:
		drv, err := databasesql.Open(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := drv.DB().PingContext(ctx); err != nil {
			_ = drv.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		b.driver, b.sql = drv, drv.GetStore(sqlStoreOptions(cfg)...)
		b.close = func() { _ = drv.Close() }

	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Database.Driver)
	}

	b.store = b.sql
	if cfg.Database.AutoMigrate {
		if err := b.sql.Migrate(ctx); err != nil {
			b.close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Debug("database ready", "driver", cfg.Database.Driver)
	return &b, nil
}

func sqlStoreOptions(cfg *Config) []storage.SQLStoreOption {
	var opts []storage.SQLStoreOption
	if cfg.Database.DisableNotify {
		opts = append(opts, storage.WithoutNotify())
	}
	return opts
}

// newProvider creates the Anthropic-backed summarization and generation
// capability.
func newProvider(cfg *Config) (llm.Provider, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	return llm.NewAnthropic(&client), nil
}

// newEngine wires an engine over store with the configured thresholds.
func newEngine(cfg *Config, store storage.Store, completer compaction.Completer, logger *slog.Logger) (*contextpg.Engine, error) {
	registry := hooks.NewRegistry()
	if cfg.Verbose {
		hooks.NewLoggingHooks(slog.NewLogLogger(logger.Handler(), slog.LevelInfo)).Register(registry)
	}

	return contextpg.New(contextpg.Config{
		Store:      store,
		Completer:  completer,
		Compaction: cfg.CompactionConfig(),
	},
		contextpg.WithLogger(logger),
		contextpg.WithRegistry(cfg.Registry()),
		contextpg.WithHooks(registry),
		contextpg.WithSystemPrompt(cfg.SystemPrompt),
	)
}

// newLogger creates the structured logger writing to w.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
