package service

import (
	"context"
	"time"
)

// recentSessionCount is the number of sessions listed on the dashboard.
const recentSessionCount = 5

// GetDashboardStats returns aggregated statistics over the most recently
// active sessions (at most MaxPageLimit).
func (s *Service) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	sessions, err := s.store.ListSessions(ctx, MaxPageLimit)
	if err != nil {
		return nil, err
	}

	window := s.trigger.Registry().WindowSize(s.model)
	now := s.now()

	stats := &DashboardStats{
		TotalSessions: len(sessions),
		WindowSize:    window,
		Threshold:     s.trigger.Threshold(s.model),
	}

	for i, session := range sessions {
		if now.Sub(session.UpdatedAt) < 24*time.Hour {
			stats.ActiveSessions++
		}
		stats.TotalCompactions += session.CompactionCount
		stats.CachedTokens += session.CumulativeTokens

		if session.CumulativeTokens >= stats.Threshold {
			stats.SessionsOverThreshold++
		}

		if i < recentSessionCount {
			stats.RecentSessions = append(stats.RecentSessions, summarizeSession(session, window))
		}

		if session.CompactionCount == 0 {
			continue
		}
		events, err := s.store.CompactionHistory(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			stats.TotalTokensSaved += e.TokensFreed()
		}
	}

	return stats, nil
}
