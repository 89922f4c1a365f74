package service

import (
	"context"
	"time"

	"github.com/youssefsiam38/contextpg/storage"
)

// GetSessionCompactionHistory returns compaction events for a session,
// oldest first.
func (s *Service) GetSessionCompactionHistory(ctx context.Context, sessionID string) ([]*CompactionEventSummary, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, notFound(err)
	}
	events, err := s.store.CompactionHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*CompactionEventSummary, 0, len(events))
	for _, event := range events {
		summaries = append(summaries, summarizeEvent(event))
	}
	return summaries, nil
}

// GetCompactionEvent finds a single event of a session by ID.
func (s *Service) GetCompactionEvent(ctx context.Context, sessionID, eventID string) (*CompactionEventSummary, error) {
	events, err := s.GetSessionCompactionHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

func summarizeEvent(event *storage.CompactionEvent) *CompactionEventSummary {
	summary := &CompactionEventSummary{
		ID:               event.ID,
		SessionID:        event.SessionID,
		SummaryMessageID: event.SummaryMessageID,
		RetiredCount:     event.RetiredCount,
		TokensBefore:     event.TokensBefore,
		TokensAfter:      event.TokensAfter,
		TokensFreed:      event.TokensFreed(),
		SummarizerModel:  event.SummarizerModel,
		Usage:            event.Usage,
		CreatedAt:        event.CreatedAt,
	}

	if event.DurationMS > 0 {
		d := time.Duration(event.DurationMS) * time.Millisecond
		summary.Duration = &d
	}
	if event.TokensBefore > 0 {
		summary.TokenReduction = 1.0 - (float64(event.TokensAfter) / float64(event.TokensBefore))
	}
	return summary
}
