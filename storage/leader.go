package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/youssefsiam38/contextpg/driver"
)

// Leader is the current holder of the maintenance lease.
type Leader struct {
	Name      string    `json:"name"`
	LeaderID  string    `json:"leader_id"`
	ElectedAt time.Time `json:"elected_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LeaderElectParams contains parameters for leader election.
type LeaderElectParams struct {
	LeaderID string
	TTL      time.Duration
	Now      time.Time
}

// LeaderStore holds the single maintenance lease shared by every process
// using the same database. Both SQLStore and MemoryStore implement it.
type LeaderStore interface {
	// LeaderAttemptElect takes the lease when it is free or expired.
	LeaderAttemptElect(ctx context.Context, params *LeaderElectParams) (bool, error)

	// LeaderAttemptReelect extends the lease when params.LeaderID holds it.
	LeaderAttemptReelect(ctx context.Context, params *LeaderElectParams) (bool, error)

	// LeaderResign releases the lease when leaderID holds it.
	LeaderResign(ctx context.Context, leaderID string) error

	// LeaderDeleteExpired removes an expired lease.
	LeaderDeleteExpired(ctx context.Context, now time.Time) (int, error)

	// LeaderGetCurrent returns the unexpired lease, or nil.
	LeaderGetCurrent(ctx context.Context, now time.Time) (*Leader, error)
}

var (
	_ LeaderStore = (*SQLStore)(nil)
	_ LeaderStore = (*MemoryStore)(nil)
)

const defaultLeaderName = "default"

// LeaderAttemptElect takes the lease when it is free or expired.
func (s *SQLStore) LeaderAttemptElect(ctx context.Context, params *LeaderElectParams) (bool, error) {
	query := `
		INSERT INTO contextpg_leader (name, leader_id, elected_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET leader_id = EXCLUDED.leader_id, elected_at = EXCLUDED.elected_at, expires_at = EXCLUDED.expires_at
		WHERE contextpg_leader.expires_at < EXCLUDED.elected_at
	`

	n, err := s.getExecutor(ctx).Exec(ctx, query, defaultLeaderName, params.LeaderID, params.Now, params.Now.Add(params.TTL))
	if err != nil {
		return false, fmt.Errorf("failed to attempt election: %w", err)
	}
	return n > 0, nil
}

// LeaderAttemptReelect extends the lease when params.LeaderID holds it.
func (s *SQLStore) LeaderAttemptReelect(ctx context.Context, params *LeaderElectParams) (bool, error) {
	query := `
		UPDATE contextpg_leader
		SET expires_at = $3
		WHERE name = $1 AND leader_id = $2
	`

	n, err := s.getExecutor(ctx).Exec(ctx, query, defaultLeaderName, params.LeaderID, params.Now.Add(params.TTL))
	if err != nil {
		return false, fmt.Errorf("failed to attempt reelection: %w", err)
	}
	return n > 0, nil
}

// LeaderResign releases the lease when leaderID holds it.
func (s *SQLStore) LeaderResign(ctx context.Context, leaderID string) error {
	query := `DELETE FROM contextpg_leader WHERE name = $1 AND leader_id = $2`

	if _, err := s.getExecutor(ctx).Exec(ctx, query, defaultLeaderName, leaderID); err != nil {
		return fmt.Errorf("failed to resign leadership: %w", err)
	}
	return nil
}

// LeaderDeleteExpired removes an expired lease.
func (s *SQLStore) LeaderDeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := s.getExecutor(ctx).Exec(ctx, `DELETE FROM contextpg_leader WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired leader: %w", err)
	}
	return int(n), nil
}

// LeaderGetCurrent returns the unexpired lease, or nil.
func (s *SQLStore) LeaderGetCurrent(ctx context.Context, now time.Time) (*Leader, error) {
	query := `
		SELECT name, leader_id, elected_at, expires_at
		FROM contextpg_leader
		WHERE name = $1 AND expires_at > $2
	`

	var leader Leader
	err := s.getExecutor(ctx).QueryRow(ctx, query, defaultLeaderName, now).Scan(
		&leader.Name,
		&leader.LeaderID,
		&leader.ElectedAt,
		&leader.ExpiresAt,
	)
	if errors.Is(err, driver.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current leader: %w", err)
	}
	return &leader, nil
}

// LeaderAttemptElect takes the lease when it is free or expired.
func (s *MemoryStore) LeaderAttemptElect(_ context.Context, params *LeaderElectParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leader != nil && !s.leader.ExpiresAt.Before(params.Now) {
		return false, nil
	}
	s.leader = &Leader{
		Name:      defaultLeaderName,
		LeaderID:  params.LeaderID,
		ElectedAt: params.Now,
		ExpiresAt: params.Now.Add(params.TTL),
	}
	return true, nil
}

// LeaderAttemptReelect extends the lease when params.LeaderID holds it.
func (s *MemoryStore) LeaderAttemptReelect(_ context.Context, params *LeaderElectParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leader == nil || s.leader.LeaderID != params.LeaderID {
		return false, nil
	}
	s.leader.ExpiresAt = params.Now.Add(params.TTL)
	return true, nil
}

// LeaderResign releases the lease when leaderID holds it.
func (s *MemoryStore) LeaderResign(_ context.Context, leaderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leader != nil && s.leader.LeaderID == leaderID {
		s.leader = nil
	}
	return nil
}

// LeaderDeleteExpired removes an expired lease.
func (s *MemoryStore) LeaderDeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leader != nil && s.leader.ExpiresAt.Before(now) {
		s.leader = nil
		return 1, nil
	}
	return 0, nil
}

// LeaderGetCurrent returns the unexpired lease, or nil.
func (s *MemoryStore) LeaderGetCurrent(_ context.Context, now time.Time) (*Leader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.leader == nil || !s.leader.ExpiresAt.After(now) {
		return nil, nil
	}
	cp := *s.leader
	return &cp, nil
}
