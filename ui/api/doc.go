// Package api provides JSON handlers for the contextpg session inspector.
//
// # Endpoints
//
// Dashboard:
//   - GET /dashboard - Dashboard statistics
//   - GET /events - SSE stream of committed compactions (requires a notifier)
//
// Sessions:
//   - GET /sessions - List sessions (paginated)
//   - GET /sessions/{id} - Session detail with the current trigger decision
//   - GET /sessions/{id}/messages - Message log (?retired=true includes retired)
//   - GET /sessions/{id}/context - The assembled context the next turn would send
//
// Compaction:
//   - GET /sessions/{id}/compactions - Compaction history
//   - GET /sessions/{id}/compactions/{eventId} - A single compaction event
package api
