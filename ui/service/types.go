package service

import (
	"time"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// Validation constants for query parameters
const (
	// MaxPageLimit is the maximum allowed page size to prevent resource exhaustion
	MaxPageLimit = 1000
	// MinPageLimit is the minimum allowed page size
	MinPageLimit = 1
)

// ValidateLimit ensures limit is within acceptable bounds.
func ValidateLimit(limit int) int {
	if limit < MinPageLimit {
		return MinPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// ValidateOffset ensures offset is non-negative.
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// DashboardStats contains aggregated statistics for the dashboard.
type DashboardStats struct {
	TotalSessions  int `json:"total_sessions"`
	ActiveSessions int `json:"active_sessions"`

	// SessionsOverThreshold would compact on their next turn, cooldown
	// aside.
	SessionsOverThreshold int `json:"sessions_over_threshold"`

	TotalCompactions int `json:"total_compactions"`
	TotalTokensSaved int `json:"total_tokens_saved"`
	CachedTokens     int `json:"cached_tokens"`

	WindowSize int `json:"window_size"`
	Threshold  int `json:"threshold"`

	RecentSessions []*SessionSummary `json:"recent_sessions"`
}

// SessionListParams contains parameters for listing sessions.
type SessionListParams struct {
	Limit  int
	Offset int
}

// SessionList is a page of sessions.
type SessionList struct {
	Sessions   []*SessionSummary `json:"sessions"`
	TotalCount int               `json:"total_count"`
	HasMore    bool              `json:"has_more"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID               string     `json:"id"`
	CumulativeTokens int        `json:"cumulative_tokens"`
	UsagePercent     float64    `json:"usage_percent"`
	CompactionCount  int        `json:"compaction_count"`
	LastCompactedAt  *time.Time `json:"last_compacted_at,omitempty"`
	LastSeq          int64      `json:"last_seq"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivityAt   time.Time  `json:"last_activity_at"`
}

// SessionDetail is the detail view of a session.
type SessionDetail struct {
	Session *storage.Session `json:"session"`

	ActiveMessages  int `json:"active_messages"`
	RetiredMessages int `json:"retired_messages"`
	SummaryMessages int `json:"summary_messages"`

	// ActiveTokens sums the active messages; CumulativeTokens on Session is
	// the cached figure the trigger reads.
	ActiveTokens compaction.TokenCount `json:"active_tokens"`

	Decision compaction.Decision `json:"decision"`

	Compactions []*CompactionEventSummary `json:"compactions"`
}

// MessageView is a stored message with its token figure.
type MessageView struct {
	*storage.Message
	Tokens compaction.TokenCount `json:"tokens"`
}

// ConversationView is the message log of a session.
type ConversationView struct {
	SessionID string         `json:"session_id"`
	Messages  []*MessageView `json:"messages"`

	// IncludesRetired is set when retired messages are part of Messages.
	IncludesRetired bool `json:"includes_retired"`

	MessageCount int                   `json:"message_count"`
	TotalTokens  compaction.TokenCount `json:"total_tokens"`
}

// CompactionEventSummary is the list view of a compaction event.
type CompactionEventSummary struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	SummaryMessageID int64          `json:"summary_message_id"`
	RetiredCount     int            `json:"retired_count"`
	TokensBefore     int            `json:"tokens_before"`
	TokensAfter      int            `json:"tokens_after"`
	TokensFreed      int            `json:"tokens_freed"`
	TokenReduction   float64        `json:"token_reduction"`
	SummarizerModel  string         `json:"summarizer_model"`
	Usage            storage.Usage  `json:"usage"`
	Duration         *time.Duration `json:"duration,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
