// Package frontend provides server-rendered pages for the contextpg
// session inspector.
//
// Message content is rendered as Markdown (goldmark) and sanitized
// (bluemonday) before it reaches the page.
//
// # Routes
//
//   - GET / - Redirect to dashboard
//   - GET /dashboard - Usage and compaction totals
//   - GET /sessions - Sessions list
//   - GET /sessions/{id} - Session detail with messages and compaction history
package frontend
