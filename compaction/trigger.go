package compaction

import (
	"time"

	"github.com/youssefsiam38/contextpg/storage"
)

// Reason explains a trigger decision.
type Reason string

const (
	ReasonTriggered      Reason = "triggered"
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonCooldown       Reason = "cooldown"
	ReasonTooFewMessages Reason = "too_few_messages"
)

// Decision is the result of a trigger evaluation.
type Decision struct {
	Compact bool   `json:"compact"`
	Reason  Reason `json:"reason"`

	CurrentTokens  int `json:"current_tokens"`
	WindowSize     int `json:"window_size"`
	Threshold      int `json:"threshold"`
	ActiveMessages int `json:"active_messages"`

	// CooldownRemaining is non-zero only when Reason is ReasonCooldown.
	CooldownRemaining time.Duration `json:"cooldown_remaining,omitempty"`
}

// Usage returns CurrentTokens as a fraction of WindowSize.
func (d Decision) Usage() float64 {
	if d.WindowSize == 0 {
		return 0
	}
	return float64(d.CurrentTokens) / float64(d.WindowSize)
}

// Trigger decides whether a session should be compacted now. It is
// read-only and safe to call on every turn.
type Trigger struct {
	config   *Config
	registry *Registry
}

// NewTrigger creates a Trigger.
func NewTrigger(config *Config, registry *Registry) *Trigger {
	return &Trigger{config: config, registry: registry}
}

// Evaluate applies the three guards in order: token threshold, cooldown
// since the last compaction, minimum active message count. The first guard
// that fails names the reason.
func (t *Trigger) Evaluate(session *storage.Session, model string, currentTokens, activeMessages int, now time.Time) Decision {
	window := t.registry.WindowSize(model)
	d := Decision{
		CurrentTokens:  currentTokens,
		WindowSize:     window,
		Threshold:      t.config.TriggerThreshold(window),
		ActiveMessages: activeMessages,
	}

	if currentTokens < d.Threshold {
		d.Reason = ReasonBelowThreshold
		return d
	}

	if remaining := t.CooldownRemaining(session, now); remaining > 0 {
		d.Reason = ReasonCooldown
		d.CooldownRemaining = remaining
		return d
	}

	if activeMessages < t.config.MinMessages {
		d.Reason = ReasonTooFewMessages
		return d
	}

	d.Compact = true
	d.Reason = ReasonTriggered
	return d
}

// CooldownRemaining returns how long until session may be compacted
// again, or zero when it may be compacted now.
func (t *Trigger) CooldownRemaining(session *storage.Session, now time.Time) time.Duration {
	if session == nil || session.LastCompactedAt == nil {
		return 0
	}
	if elapsed := now.Sub(*session.LastCompactedAt); elapsed < t.config.Cooldown {
		return t.config.Cooldown - elapsed
	}
	return 0
}

// Registry returns the window registry the trigger reads.
func (t *Trigger) Registry() *Registry {
	return t.registry
}

// Threshold returns the trigger threshold for model.
func (t *Trigger) Threshold(model string) int {
	return t.config.TriggerThreshold(t.registry.WindowSize(model))
}

// ShouldCompact is Evaluate reduced to its boolean outcome.
func (t *Trigger) ShouldCompact(session *storage.Session, model string, currentTokens, activeMessages int, now time.Time) bool {
	return t.Evaluate(session, model, currentTokens, activeMessages, now).Compact
}
