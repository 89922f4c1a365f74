package hooks

import (
	"context"
	"log"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with default logger
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// Register attaches every hook of h to r.
func (h *LoggingHooks) Register(r *Registry) {
	r.OnBeforeContext(h.BeforeContext)
	r.OnAfterResponse(h.AfterResponse)
	r.OnBeforeCompaction(h.BeforeCompaction)
	r.OnAfterCompaction(h.AfterCompaction)
}

// BeforeContext logs the size of the assembled history
func (h *LoggingHooks) BeforeContext(ctx context.Context, sessionID string, messages []compaction.ContextMessage) error {
	h.logger.Printf("[contextpg] Session %s: handing %d messages to generation", sessionID, len(messages))
	return nil
}

// AfterResponse logs a recorded response
func (h *LoggingHooks) AfterResponse(ctx context.Context, sessionID string, msg *storage.Message, usage *storage.Usage) error {
	if usage == nil {
		h.logger.Printf("[contextpg] Session %s: recorded response seq=%d (usage not reported)", sessionID, msg.Seq)
		return nil
	}
	h.logger.Printf("[contextpg] Session %s: recorded response seq=%d (%d input + %d output tokens)",
		sessionID, msg.Seq, usage.InputTokens, usage.OutputTokens)
	return nil
}

// BeforeCompaction logs before context compaction
func (h *LoggingHooks) BeforeCompaction(ctx context.Context, sessionID string, decision compaction.Decision) error {
	h.logger.Printf("[contextpg] Starting context compaction for session %s (%d/%d tokens, %.0f%% of window)",
		sessionID, decision.CurrentTokens, decision.WindowSize, decision.Usage()*100)
	return nil
}

// AfterCompaction logs after context compaction
func (h *LoggingHooks) AfterCompaction(ctx context.Context, sessionID string, result *compaction.Result) error {
	if !result.Compacted() {
		if result.Err != nil {
			h.logger.Printf("[contextpg] Compaction skipped for session %s: %s: %v", sessionID, result.Outcome, result.Err)
		} else {
			h.logger.Printf("[contextpg] Compaction skipped for session %s: %s", sessionID, result.Outcome)
		}
		return nil
	}

	reduction := float64(0)
	if result.TokensBefore > 0 {
		reduction = float64(result.TokensFreed) / float64(result.TokensBefore) * 100
	}

	h.logger.Printf("[contextpg] Compaction complete: %d -> %d tokens (%.1f%% reduction, %d messages retired, %d kept)",
		result.TokensBefore, result.TokensAfter, reduction, result.CompactedCount, result.KeptCount)
	return nil
}

// MetricsHooks collects metrics for monitoring
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// Register attaches every hook of h to r.
func (h *MetricsHooks) Register(r *Registry) {
	r.OnAfterResponse(h.AfterResponse)
	r.OnAfterCompaction(h.AfterCompaction)
}

// AfterResponse records response metrics
func (h *MetricsHooks) AfterResponse(ctx context.Context, sessionID string, msg *storage.Message, usage *storage.Usage) error {
	if usage != nil {
		total := usage.TotalTokens
		if total == 0 {
			total = usage.InputTokens + usage.OutputTokens
		}
		h.OnMetric("contextpg.tokens.input", float64(usage.InputTokens), nil)
		h.OnMetric("contextpg.tokens.output", float64(usage.OutputTokens), nil)
		h.OnMetric("contextpg.tokens.total", float64(total), nil)
	}
	return nil
}

// AfterCompaction records compaction metrics
func (h *MetricsHooks) AfterCompaction(ctx context.Context, sessionID string, result *compaction.Result) error {
	tags := map[string]string{"outcome": string(result.Outcome)}

	h.OnMetric("contextpg.compaction.attempts", 1, tags)
	if !result.Compacted() {
		return nil
	}

	h.OnMetric("contextpg.compaction.tokens_before", float64(result.TokensBefore), tags)
	h.OnMetric("contextpg.compaction.tokens_after", float64(result.TokensAfter), tags)
	h.OnMetric("contextpg.compaction.retired_messages", float64(result.CompactedCount), tags)
	h.OnMetric("contextpg.compaction.duration_ms", float64(result.Duration.Milliseconds()), tags)

	if result.TokensBefore > 0 {
		h.OnMetric("contextpg.compaction.reduction_pct",
			float64(result.TokensFreed)/float64(result.TokensBefore)*100, tags)
	}

	return nil
}
