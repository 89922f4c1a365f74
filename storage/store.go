// Package storage defines the persisted data model for contextpg and the
// Store contract the compaction engine reads and mutates through.
//
// Two implementations are provided: MemoryStore for tests and embedded use,
// and SQLStore, which runs on any driver.Driver (pgx/v5 or database/sql).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors returned by Store implementations.
var (
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("storage: session not found")

	// ErrConcurrentCompaction is returned by CommitCompaction when the
	// session was compacted, or one of the messages retired, after the
	// caller read it. Nothing is applied.
	ErrConcurrentCompaction = errors.New("storage: concurrent compaction")

	// ErrInvalidMessage is returned when a message fails validation.
	ErrInvalidMessage = errors.New("storage: invalid message")
)

// Store defines the storage interface for the compaction engine.
//
// All mutation of messages and sessions flows through AppendMessage,
// UpdateTokenCount and CommitCompaction. Messages are never deleted and
// the retired flag never reverts.
type Store interface {
	// Session operations
	EnsureSession(ctx context.Context, sessionID string, now time.Time) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	UpdateTokenCount(ctx context.Context, sessionID string, tokens int, now time.Time) error

	// Message operations

	// AppendMessage assigns msg.ID and msg.Seq and persists it.
	AppendMessage(ctx context.Context, msg *Message) error
	// ActiveMessages returns non-retired messages ordered by seq.
	ActiveMessages(ctx context.Context, sessionID string) ([]*Message, error)
	// Messages returns every message including retired ones, ordered by seq.
	Messages(ctx context.Context, sessionID string) ([]*Message, error)

	// Compaction operations
	CommitCompaction(ctx context.Context, c *CompactionCommit) (*CompactionEvent, error)
	CompactionHistory(ctx context.Context, sessionID string) ([]*CompactionEvent, error)
}

// Role is the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Session represents a conversation session
type Session struct {
	ID string `json:"id"`

	// CumulativeTokens is the last computed context usage. It is a cache
	// refreshed at turn-processing and compaction time.
	CumulativeTokens int        `json:"cumulative_tokens"`
	LastCompactedAt  *time.Time `json:"last_compacted_at,omitempty"`
	CompactionCount  int        `json:"compaction_count"`

	// LastSeq is the highest seq allocated to a message of this session.
	LastSeq   int64     `json:"last_seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a stored message
type Message struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`

	// Seq is strictly increasing within a session and is the canonical
	// order key. CreatedAt is for display only.
	Seq     int64  `json:"seq"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// TokenCount is the exact count reported by a model call, or nil when
	// the message has not been round-tripped and must be estimated.
	TokenCount *int       `json:"token_count,omitempty"`
	IsSummary  bool       `json:"is_summary"`
	Retired    bool       `json:"retired"`
	RetiredAt  *time.Time `json:"retired_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsDirective reports whether m is a system message that is not a
// compaction summary.
func (m *Message) IsDirective() bool {
	return m.Role == RoleSystem && !m.IsSummary
}

// Validate checks the fields a caller must set before AppendMessage.
func (m *Message) Validate() error {
	if m.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidMessage)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
	}
	if m.TokenCount != nil && *m.TokenCount < 0 {
		return fmt.Errorf("%w: token_count must be non-negative", ErrInvalidMessage)
	}
	return nil
}

// CompactionCommit is the full state transition produced by one compaction.
type CompactionCommit struct {
	SessionID string

	// ExpectedLastCompactedAt is the session's LastCompactedAt as read by
	// the compactor. The commit aborts if it changed.
	ExpectedLastCompactedAt *time.Time

	// RetireIDs are the message IDs of the compact set. Each must still be
	// active.
	RetireIDs []int64

	// SummaryContent is the full content of the new system message.
	SummaryContent string

	// TokensBefore and TokensAfter feed the session cache and the audit event.
	TokensBefore int
	TokensAfter  int

	SummarizerModel string
	Usage           Usage
	Duration        time.Duration
	Now             time.Time
}

// Usage is token usage reported by a model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// CompactionEvent is the audit record of a committed compaction.
type CompactionEvent struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	SummaryMessageID int64     `json:"summary_message_id"`
	RetiredCount     int       `json:"retired_count"`
	TokensBefore     int       `json:"tokens_before"`
	TokensAfter      int       `json:"tokens_after"`
	SummarizerModel  string    `json:"summarizer_model"`
	Usage            Usage     `json:"usage"`
	DurationMS       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// TokensFreed returns TokensBefore minus TokensAfter.
func (e *CompactionEvent) TokensFreed() int {
	return e.TokensBefore - e.TokensAfter
}

// sameInstant compares optional timestamps at the microsecond precision
// Postgres stores.
func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}
