package service

import (
	"context"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// ListSessions returns a page of sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, params SessionListParams) (*SessionList, error) {
	if params.Limit <= 0 {
		params.Limit = 25
	}
	params.Limit = ValidateLimit(params.Limit)
	params.Offset = ValidateOffset(params.Offset)

	// The store pages by limit only; fetch through the offset and slice.
	sessions, err := s.store.ListSessions(ctx, MaxPageLimit)
	if err != nil {
		return nil, err
	}
	total := len(sessions)

	start := min(params.Offset, total)
	end := min(start+params.Limit, total)

	window := s.trigger.Registry().WindowSize(s.model)
	summaries := make([]*SessionSummary, 0, end-start)
	for _, session := range sessions[start:end] {
		summaries = append(summaries, summarizeSession(session, window))
	}

	return &SessionList{
		Sessions:   summaries,
		TotalCount: total,
		HasMore:    end < total,
	}, nil
}

// GetSession returns a session by ID.
func (s *Service) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return session, nil
}

// GetSessionDetail returns a session with message counts, the current
// trigger decision and its compaction history.
func (s *Service) GetSessionDetail(ctx context.Context, id string) (*SessionDetail, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	all, err := s.store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &SessionDetail{
		Session:      session,
		ActiveTokens: compaction.ExactCount(0),
	}
	active := make([]*storage.Message, 0, len(all))
	for _, m := range all {
		if m.Retired {
			detail.RetiredMessages++
			continue
		}
		active = append(active, m)
		if m.IsSummary {
			detail.SummaryMessages++
		}
		detail.ActiveTokens = detail.ActiveTokens.Add(compaction.MessageTokens(m))
	}
	detail.ActiveMessages = len(active)

	tokens := session.CumulativeTokens
	if tokens == 0 {
		tokens = detail.ActiveTokens.N
	}
	detail.Decision = s.trigger.Evaluate(session, s.model, tokens, len(active), s.now())

	detail.Compactions, err = s.GetSessionCompactionHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func summarizeSession(session *storage.Session, window int) *SessionSummary {
	summary := &SessionSummary{
		ID:               session.ID,
		CumulativeTokens: session.CumulativeTokens,
		CompactionCount:  session.CompactionCount,
		LastCompactedAt:  session.LastCompactedAt,
		LastSeq:          session.LastSeq,
		CreatedAt:        session.CreatedAt,
		LastActivityAt:   session.UpdatedAt,
	}
	if window > 0 {
		summary.UsagePercent = float64(session.CumulativeTokens) / float64(window) * 100
	}
	return summary
}
