package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It honors the same atomicity and
// monotonicity guarantees as SQLStore and is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message
	events   map[string][]*CompactionEvent
	leader   *Leader
	nextID   int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
		events:   make(map[string][]*CompactionEvent),
	}
}

// EnsureSession returns the session, creating it on first contact.
func (s *MemoryStore) EnsureSession(_ context.Context, sessionID string, now time.Time) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}
		s.sessions[sessionID] = sess
	}
	return copySession(sess), nil
}

// GetSession retrieves a session by ID.
func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return copySession(sess), nil
}

// ListSessions returns sessions, most recently updated first.
func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, copySession(sess))
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// UpdateTokenCount overwrites the session's cumulative token cache.
func (s *MemoryStore) UpdateTokenCount(_ context.Context, sessionID string, tokens int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.CumulativeTokens = tokens
	sess.UpdatedAt = now
	return nil
}

// AppendMessage assigns msg.ID and msg.Seq and stores a copy.
func (s *MemoryStore) AppendMessage(_ context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[msg.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, msg.SessionID)
	}

	s.nextID++
	sess.LastSeq++
	sess.UpdatedAt = msg.CreatedAt

	msg.ID = s.nextID
	msg.Seq = sess.LastSeq
	msg.Retired = false
	msg.RetiredAt = nil
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], copyMessage(msg))
	return nil
}

// ActiveMessages returns non-retired messages ordered by seq.
func (s *MemoryStore) ActiveMessages(_ context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, m := range s.messages[sessionID] {
		if !m.Retired {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

// Messages returns every message including retired ones, ordered by seq.
func (s *MemoryStore) Messages(_ context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Message, 0, len(s.messages[sessionID]))
	for _, m := range s.messages[sessionID] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

// CommitCompaction applies c atomically. Every precondition is checked
// before the first mutation, so a failed commit changes nothing.
func (s *MemoryStore) CommitCompaction(_ context.Context, c *CompactionCommit) (*CompactionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.SessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, c.SessionID)
	}
	if !sameInstant(sess.LastCompactedAt, c.ExpectedLastCompactedAt) {
		return nil, ErrConcurrentCompaction
	}
	if len(c.RetireIDs) == 0 {
		return nil, fmt.Errorf("compaction commit for %s retires no messages", c.SessionID)
	}

	msgs := s.messages[c.SessionID]
	targets := make([]*Message, 0, len(c.RetireIDs))
	seen := make(map[int64]bool, len(c.RetireIDs))
	for _, id := range c.RetireIDs {
		idx := slices.IndexFunc(msgs, func(m *Message) bool { return m.ID == id })
		if idx < 0 || msgs[idx].Retired || seen[id] {
			return nil, fmt.Errorf("%w: message %d is not active", ErrConcurrentCompaction, id)
		}
		seen[id] = true
		targets = append(targets, msgs[idx])
	}

	now := c.Now
	for _, m := range targets {
		m.Retired = true
		m.RetiredAt = &now
	}

	s.nextID++
	sess.LastSeq++
	summary := &Message{
		ID:        s.nextID,
		SessionID: c.SessionID,
		Seq:       sess.LastSeq,
		Role:      RoleSystem,
		Content:   c.SummaryContent,
		IsSummary: true,
		CreatedAt: now,
	}
	s.messages[c.SessionID] = append(msgs, summary)

	sess.CumulativeTokens = c.TokensAfter
	sess.LastCompactedAt = &now
	sess.CompactionCount++
	sess.UpdatedAt = now

	event := &CompactionEvent{
		ID:               uuid.New().String(),
		SessionID:        c.SessionID,
		SummaryMessageID: summary.ID,
		RetiredCount:     len(targets),
		TokensBefore:     c.TokensBefore,
		TokensAfter:      c.TokensAfter,
		SummarizerModel:  c.SummarizerModel,
		Usage:            c.Usage,
		DurationMS:       c.Duration.Milliseconds(),
		CreatedAt:        now,
	}
	s.events[c.SessionID] = append(s.events[c.SessionID], event)

	out := *event
	return &out, nil
}

// CompactionHistory returns a session's compaction events, oldest first.
func (s *MemoryStore) CompactionHistory(_ context.Context, sessionID string) ([]*CompactionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*CompactionEvent, 0, len(s.events[sessionID]))
	for _, e := range s.events[sessionID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func copySession(s *Session) *Session {
	cp := *s
	if s.LastCompactedAt != nil {
		t := *s.LastCompactedAt
		cp.LastCompactedAt = &t
	}
	return &cp
}

func copyMessage(m *Message) *Message {
	cp := *m
	if m.TokenCount != nil {
		n := *m.TokenCount
		cp.TokenCount = &n
	}
	if m.RetiredAt != nil {
		t := *m.RetiredAt
		cp.RetiredAt = &t
	}
	return &cp
}

// Compile-time check
var _ Store = (*MemoryStore)(nil)
