// Package service provides the shared read-only logic for the contextpg
// session inspector.
//
// The service layer is HTTP-agnostic and used by both the JSON API and
// the SSR frontend handlers.
//
// # Usage
//
//	svc := service.New(store, compactor.Trigger(), "claude-sonnet-4-5")
//
//	stats, err := svc.GetDashboardStats(ctx)
//
//	sessions, err := svc.ListSessions(ctx, service.SessionListParams{
//	    Limit:  25,
//	    Offset: 0,
//	})
//
//	conv, err := svc.GetConversation(ctx, sessionID, true)
package service
