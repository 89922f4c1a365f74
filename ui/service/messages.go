package service

import (
	"context"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// GetConversation returns the message log of a session in seq order.
// Retired messages are included only when includeRetired is set; the
// token total always covers the returned messages.
func (s *Service) GetConversation(ctx context.Context, sessionID string, includeRetired bool) (*ConversationView, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, notFound(err)
	}

	var messages []*storage.Message
	var err error
	if includeRetired {
		messages, err = s.store.Messages(ctx, sessionID)
	} else {
		messages, err = s.store.ActiveMessages(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}

	view := &ConversationView{
		SessionID:       sessionID,
		IncludesRetired: includeRetired,
		MessageCount:    len(messages),
		TotalTokens:     compaction.ExactCount(0),
		Messages:        make([]*MessageView, 0, len(messages)),
	}
	for _, msg := range messages {
		tokens := compaction.MessageTokens(msg)
		view.Messages = append(view.Messages, &MessageView{Message: msg, Tokens: tokens})
		view.TotalTokens = view.TotalTokens.Add(tokens)
	}

	return view, nil
}

// GetContext returns exactly what the next generation call would receive.
func (s *Service) GetContext(ctx context.Context, sessionID string) ([]compaction.ContextMessage, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, notFound(err)
	}
	active, err := s.store.ActiveMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return compaction.Assemble(active), nil
}
