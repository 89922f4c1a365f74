package contextpg

import (
	"strings"
	"time"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/hooks"
)

// Option is a functional option for configuring an Engine
type Option func(*internalConfig) error

// WithLogger sets the structured logger. *slog.Logger satisfies
// compaction.Logger.
func WithLogger(logger compaction.Logger) Option {
	return func(c *internalConfig) error {
		if logger == nil {
			return NewEngineError("WithLogger", ErrInvalidConfig).
				WithContext("reason", "logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithHooks replaces the hook registry
func WithHooks(registry *hooks.Registry) Option {
	return func(c *internalConfig) error {
		if registry == nil {
			return NewEngineError("WithHooks", ErrInvalidConfig).
				WithContext("reason", "registry must not be nil")
		}
		c.hooks = registry
		return nil
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *internalConfig) error {
		if now == nil {
			return NewEngineError("WithClock", ErrInvalidConfig).
				WithContext("reason", "clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// WithRegistry sets the context window registry
func WithRegistry(registry *compaction.Registry) Option {
	return func(c *internalConfig) error {
		if registry == nil {
			return NewEngineError("WithRegistry", ErrInvalidConfig).
				WithContext("reason", "registry must not be nil")
		}
		c.registry = registry
		return nil
	}
}

// WithContextWindow registers a window size for a model pattern
func WithContextWindow(pattern string, tokens int) Option {
	return func(c *internalConfig) error {
		if pattern == "" || tokens <= 0 {
			return NewEngineError("WithContextWindow", ErrInvalidConfig).
				WithContext("pattern", pattern).
				WithContext("tokens", tokens).
				WithContext("reason", "pattern and a positive size are required")
		}
		c.registry.Register(pattern, tokens)
		return nil
	}
}

// WithSystemPrompt seeds every session with a system directive on its
// first turn
func WithSystemPrompt(prompt string) Option {
	return func(c *internalConfig) error {
		c.systemPrompt = strings.TrimSpace(prompt)
		return nil
	}
}

// WithAutoCompaction enables or disables compaction inside ProcessTurn
func WithAutoCompaction(enabled bool) Option {
	return func(c *internalConfig) error {
		c.autoCompaction = enabled
		return nil
	}
}
