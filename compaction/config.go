package compaction

import (
	"fmt"
	"math"
	"time"
)

// Default configuration values.
const (
	DefaultTriggerRatio        = 0.75             // compact at 75% of the context window
	DefaultTargetRatio         = 0.20             // keep at most 20% of the window verbatim
	DefaultMinMessages         = 5                // never compact fewer than 5 messages
	DefaultCooldown            = 60 * time.Second // minimum gap between two compactions
	DefaultSummarizerModel     = "claude-haiku-4-5"
	DefaultSummarizerMaxTokens = 4096 // Max tokens for summarization response
	DefaultSummarizeTimeout    = 2 * time.Minute
)

// Config holds compaction configuration.
type Config struct {
	// TriggerRatio is the fraction of the context window (0.0-1.0] at which
	// compaction is considered.
	// Default: 0.75
	TriggerRatio float64

	// TargetRatio is the fraction of the context window the retained tail
	// may occupy after compaction. Must be below TriggerRatio so compaction
	// does not re-trigger on the next turn.
	// Default: 0.20
	TargetRatio float64

	// MinMessages is the minimum number of active messages required to
	// trigger, and the minimum size of the compact set.
	// Default: 5
	MinMessages int

	// Cooldown is the minimum time between two compactions of a session.
	// Default: 60s
	Cooldown time.Duration

	// SummarizerModel is the model identifier passed to the summarization
	// capability and recorded on the audit event.
	// Default: "claude-haiku-4-5"
	SummarizerModel string

	// SummarizerMaxTokens is the maximum tokens for the summarization response.
	// Default: 4096
	SummarizerMaxTokens int

	// SummarizeTimeout bounds a single summarization call. On timeout the
	// compaction is abandoned and nothing is committed.
	// Default: 2m
	SummarizeTimeout time.Duration

	// CompactDirectives allows original system directives to be folded into
	// the summary. When false they are pinned and their tokens are charged
	// against the target budget first.
	// Default: false
	CompactDirectives bool
}

// DefaultConfig returns a Config with the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		TriggerRatio:        DefaultTriggerRatio,
		TargetRatio:         DefaultTargetRatio,
		MinMessages:         DefaultMinMessages,
		Cooldown:            DefaultCooldown,
		SummarizerModel:     DefaultSummarizerModel,
		SummarizerMaxTokens: DefaultSummarizerMaxTokens,
		SummarizeTimeout:    DefaultSummarizeTimeout,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.TriggerRatio <= 0 || c.TriggerRatio > 1.0 {
		return fmt.Errorf("%w: trigger_ratio must be in (0, 1], got %f", ErrInvalidConfig, c.TriggerRatio)
	}

	if c.TargetRatio <= 0 || c.TargetRatio >= c.TriggerRatio {
		return fmt.Errorf("%w: target_ratio must be in (0, trigger_ratio), got %f", ErrInvalidConfig, c.TargetRatio)
	}

	if c.MinMessages < 1 {
		return fmt.Errorf("%w: min_messages must be positive, got %d", ErrInvalidConfig, c.MinMessages)
	}

	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must be non-negative, got %s", ErrInvalidConfig, c.Cooldown)
	}

	if c.SummarizerModel == "" {
		return fmt.Errorf("%w: summarizer_model is required", ErrInvalidConfig)
	}

	if c.SummarizerMaxTokens <= 0 {
		return fmt.Errorf("%w: summarizer_max_tokens must be positive, got %d", ErrInvalidConfig, c.SummarizerMaxTokens)
	}

	if c.SummarizeTimeout <= 0 {
		return fmt.Errorf("%w: summarize_timeout must be positive, got %s", ErrInvalidConfig, c.SummarizeTimeout)
	}

	return nil
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.TriggerRatio == 0 {
		c.TriggerRatio = DefaultTriggerRatio
	}
	if c.TargetRatio == 0 {
		c.TargetRatio = DefaultTargetRatio
	}
	if c.MinMessages == 0 {
		c.MinMessages = DefaultMinMessages
	}
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.SummarizerModel == "" {
		c.SummarizerModel = DefaultSummarizerModel
	}
	if c.SummarizerMaxTokens == 0 {
		c.SummarizerMaxTokens = DefaultSummarizerMaxTokens
	}
	if c.SummarizeTimeout == 0 {
		c.SummarizeTimeout = DefaultSummarizeTimeout
	}
}

// TriggerThreshold returns the smallest token count that triggers
// compaction for a window of the given size.
func (c *Config) TriggerThreshold(window int) int {
	return int(math.Ceil(float64(window) * c.TriggerRatio))
}

// TargetBudget returns the token budget for the retained tail.
func (c *Config) TargetBudget(window int) int {
	return int(float64(window) * c.TargetRatio)
}
