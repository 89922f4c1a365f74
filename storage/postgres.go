package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/youssefsiam38/contextpg/driver"
)

// SQLStore implements Store on PostgreSQL through a driver.Driver.
//
// When the context carries a transaction (driver.WithExecutor), every
// operation joins it and CommitCompaction does not commit on its own.
type SQLStore struct {
	driver driver.Driver
	notify bool
}

// SQLStoreOption configures a SQLStore.
type SQLStoreOption func(*SQLStore)

// WithoutNotify disables the pg_notify issued by CommitCompaction.
func WithoutNotify() SQLStoreOption {
	return func(s *SQLStore) { s.notify = false }
}

// NewSQLStore creates a new SQL-backed store.
func NewSQLStore(d driver.Driver, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{driver: d, notify: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getExecutor returns the executor from context if present, otherwise the pool executor.
func (s *SQLStore) getExecutor(ctx context.Context) driver.Executor {
	if exec := driver.ExecutorFromContext(ctx); exec != nil {
		return exec
	}
	return s.driver.GetExecutor()
}

// inTx runs fn inside the context transaction, or a new one committed on success.
func (s *SQLStore) inTx(ctx context.Context, fn func(exec driver.Executor) error) error {
	if exec := driver.ExecutorFromContext(ctx); exec != nil {
		return fn(exec)
	}

	tx, err := s.driver.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const sessionColumns = `id, cumulative_tokens, last_compacted_at, compaction_count, last_seq, created_at, updated_at`

func scanSession(row driver.Row) (*Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID,
		&sess.CumulativeTokens,
		&sess.LastCompactedAt,
		&sess.CompactionCount,
		&sess.LastSeq,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// EnsureSession returns the session, creating it on first contact.
func (s *SQLStore) EnsureSession(ctx context.Context, sessionID string, now time.Time) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		INSERT INTO contextpg_sessions (id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.getExecutor(ctx).Exec(ctx, query, sessionID, now); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return s.GetSession(ctx, sessionID)
}

// GetSession retrieves a session by ID.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM contextpg_sessions WHERE id = $1`

	sess, err := scanSession(s.getExecutor(ctx).QueryRow(ctx, query, sessionID))
	if errors.Is(err, driver.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions, most recently updated first.
func (s *SQLStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + sessionColumns + `
		FROM contextpg_sessions
		ORDER BY updated_at DESC, id
		LIMIT $1
	`

	rows, err := s.getExecutor(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// UpdateTokenCount overwrites the session's cumulative token cache.
func (s *SQLStore) UpdateTokenCount(ctx context.Context, sessionID string, tokens int, now time.Time) error {
	query := `
		UPDATE contextpg_sessions
		SET cumulative_tokens = $2, updated_at = $3
		WHERE id = $1
	`

	n, err := s.getExecutor(ctx).Exec(ctx, query, sessionID, tokens, now)
	if err != nil {
		return fmt.Errorf("failed to update token count: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// AppendMessage allocates the next seq and inserts msg in a single statement.
func (s *SQLStore) AppendMessage(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	query := `
		WITH next AS (
			UPDATE contextpg_sessions
			SET last_seq = last_seq + 1, updated_at = $5
			WHERE id = $1
			RETURNING last_seq
		)
		INSERT INTO contextpg_messages (session_id, seq, role, content, token_count, is_summary, created_at)
		SELECT $1::text, next.last_seq, $2::text, $3::text, $4::integer, $6::boolean, $5::timestamptz FROM next
		RETURNING id, seq
	`

	err := s.getExecutor(ctx).QueryRow(ctx, query,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		msg.TokenCount,
		msg.CreatedAt,
		msg.IsSummary,
	).Scan(&msg.ID, &msg.Seq)
	if errors.Is(err, driver.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, msg.SessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	msg.Retired = false
	msg.RetiredAt = nil
	return nil
}

const messageColumns = `id, session_id, seq, role, content, token_count, is_summary, retired, retired_at, created_at`

// ActiveMessages returns non-retired messages ordered by seq.
func (s *SQLStore) ActiveMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM contextpg_messages
		WHERE session_id = $1 AND NOT retired
		ORDER BY seq
	`
	return s.queryMessages(ctx, query, sessionID)
}

// Messages returns every message including retired ones, ordered by seq.
func (s *SQLStore) Messages(ctx context.Context, sessionID string) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM contextpg_messages
		WHERE session_id = $1
		ORDER BY seq
	`
	return s.queryMessages(ctx, query, sessionID)
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var role string
		err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Seq,
			&role,
			&msg.Content,
			&msg.TokenCount,
			&msg.IsSummary,
			&msg.Retired,
			&msg.RetiredAt,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = Role(role)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// CommitCompaction applies c in one transaction: lock the session row,
// verify nobody compacted since the caller read it, retire the compact set,
// insert the summary, refresh the session cache, record the audit event
// and notify listeners. Nothing is visible until commit.
func (s *SQLStore) CommitCompaction(ctx context.Context, c *CompactionCommit) (*CompactionEvent, error) {
	if len(c.RetireIDs) == 0 {
		return nil, fmt.Errorf("compaction commit for %s retires no messages", c.SessionID)
	}

	event := &CompactionEvent{
		ID:              uuid.New().String(),
		SessionID:       c.SessionID,
		RetiredCount:    len(c.RetireIDs),
		TokensBefore:    c.TokensBefore,
		TokensAfter:     c.TokensAfter,
		SummarizerModel: c.SummarizerModel,
		Usage:           c.Usage,
		DurationMS:      c.Duration.Milliseconds(),
		CreatedAt:       c.Now,
	}

	err := s.inTx(ctx, func(exec driver.Executor) error {
		var lastCompactedAt *time.Time
		err := exec.QueryRow(ctx,
			`SELECT last_compacted_at FROM contextpg_sessions WHERE id = $1 FOR UPDATE`,
			c.SessionID,
		).Scan(&lastCompactedAt)
		if errors.Is(err, driver.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, c.SessionID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if !sameInstant(lastCompactedAt, c.ExpectedLastCompactedAt) {
			return ErrConcurrentCompaction
		}

		retire := `
			UPDATE contextpg_messages
			SET retired = TRUE, retired_at = $3
			WHERE id = $1 AND session_id = $2 AND NOT retired
		`
		items := make([]driver.BatchItem, len(c.RetireIDs))
		for i, id := range c.RetireIDs {
			items[i] = driver.BatchItem{Query: retire, Args: []any{id, c.SessionID, c.Now}}
		}
		affected, err := driver.ExecBatch(ctx, exec, items)
		if err != nil {
			return fmt.Errorf("failed to retire messages: %w", err)
		}
		for i, n := range affected {
			if n != 1 {
				return fmt.Errorf("%w: message %d is not active", ErrConcurrentCompaction, c.RetireIDs[i])
			}
		}

		var seq int64
		err = exec.QueryRow(ctx, `
			UPDATE contextpg_sessions
			SET last_seq = last_seq + 1,
			    cumulative_tokens = $2,
			    last_compacted_at = $3,
			    compaction_count = compaction_count + 1,
			    updated_at = $3
			WHERE id = $1
			RETURNING last_seq
		`, c.SessionID, c.TokensAfter, c.Now).Scan(&seq)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}

		err = exec.QueryRow(ctx, `
			INSERT INTO contextpg_messages (session_id, seq, role, content, is_summary, created_at)
			VALUES ($1, $2, $3, $4, TRUE, $5)
			RETURNING id
		`, c.SessionID, seq, string(RoleSystem), c.SummaryContent, c.Now).Scan(&event.SummaryMessageID)
		if err != nil {
			return fmt.Errorf("failed to insert summary: %w", err)
		}

		_, err = exec.Exec(ctx, `
			INSERT INTO contextpg_compaction_events
				(id, session_id, summary_message_id, retired_count, tokens_before, tokens_after,
				 summarizer_model, input_tokens, output_tokens, total_tokens, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			event.ID,
			event.SessionID,
			event.SummaryMessageID,
			event.RetiredCount,
			event.TokensBefore,
			event.TokensAfter,
			event.SummarizerModel,
			event.Usage.InputTokens,
			event.Usage.OutputTokens,
			event.Usage.TotalTokens,
			event.DurationMS,
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save compaction event: %w", err)
		}

		if s.notify {
			if _, err := exec.Exec(ctx, `SELECT pg_notify($1, $2)`, driver.ChannelCompaction, c.SessionID); err != nil {
				return fmt.Errorf("failed to notify: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return event, nil
}

// CompactionHistory returns a session's compaction events, oldest first.
func (s *SQLStore) CompactionHistory(ctx context.Context, sessionID string) ([]*CompactionEvent, error) {
	query := `
		SELECT id::text, session_id, summary_message_id, retired_count, tokens_before, tokens_after,
		       summarizer_model, input_tokens, output_tokens, total_tokens, duration_ms, created_at
		FROM contextpg_compaction_events
		WHERE session_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.getExecutor(ctx).Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query compaction history: %w", err)
	}
	defer rows.Close()

	var events []*CompactionEvent
	for rows.Next() {
		var event CompactionEvent
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.SummaryMessageID,
			&event.RetiredCount,
			&event.TokensBefore,
			&event.TokensAfter,
			&event.SummarizerModel,
			&event.Usage.InputTokens,
			&event.Usage.OutputTokens,
			&event.Usage.TotalTokens,
			&event.DurationMS,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compaction event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compaction events: %w", err)
	}

	return events, nil
}

// Compile-time check
var _ Store = (*SQLStore)(nil)
