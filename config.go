package contextpg

import (
	"fmt"
	"time"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/hooks"
	"github.com/youssefsiam38/contextpg/storage"
)

// Config holds the required configuration for an engine.
//
// Example:
//
//	drv := pgxv5.New(pool)
//	engine, _ := contextpg.New(contextpg.Config{
//	    Store:     drv.GetStore(),
//	    Completer: llm.NewAnthropic(&client),
//	})
type Config struct {
	// Store persists sessions and messages (required)
	Store storage.Store

	// Completer is the summarization capability (required)
	Completer compaction.Completer

	// Compaction overrides the compaction thresholds. Zero fields take
	// their defaults.
	Compaction *compaction.Config
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("%w: Store is required", ErrInvalidConfig)
	}

	if c.Completer == nil {
		return fmt.Errorf("%w: Completer is required", ErrInvalidConfig)
	}

	return nil
}

// internalConfig holds the full engine configuration including optional parameters
type internalConfig struct {
	store      storage.Store
	completer  compaction.Completer
	compaction *compaction.Config

	logger         compaction.Logger
	hooks          *hooks.Registry
	registry       *compaction.Registry
	now            func() time.Time
	systemPrompt   string
	autoCompaction bool
}

// newInternalConfig creates a new internal config from the public Config
func newInternalConfig(cfg Config) *internalConfig {
	cc := cfg.Compaction
	if cc == nil {
		cc = compaction.DefaultConfig()
	}

	return &internalConfig{
		store:      cfg.Store,
		completer:  cfg.Completer,
		compaction: cc,

		logger:         compaction.NoopLogger(),
		hooks:          hooks.NewRegistry(),
		registry:       compaction.NewRegistry(),
		now:            time.Now,
		autoCompaction: true,
	}
}
