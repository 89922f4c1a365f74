package api

import (
	"net/http"

	"github.com/youssefsiam38/contextpg/notifier"
	"github.com/youssefsiam38/contextpg/ui/service"
)

// Config holds API router configuration.
type Config struct {
	// PageSize for pagination.
	PageSize int

	// Notifier feeds GET /events. When nil the endpoint returns 501.
	Notifier *notifier.Notifier

	// Logger for structured logging.
	Logger Logger
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// router holds the API router state.
type router struct {
	svc    *service.Service
	config *Config
}

// NewRouter creates a new API router.
func NewRouter(svc *service.Service, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{
			PageSize: 25,
		}
	}

	r := &router{
		svc:    svc,
		config: cfg,
	}

	mux := http.NewServeMux()

	// Dashboard
	mux.HandleFunc("GET /dashboard", r.handleDashboard)
	mux.HandleFunc("GET /events", r.handleEvents)

	// Sessions
	mux.HandleFunc("GET /sessions", r.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", r.handleGetSession)
	mux.HandleFunc("GET /sessions/{id}/messages", r.handleGetMessages)
	mux.HandleFunc("GET /sessions/{id}/context", r.handleGetContext)

	// Compaction
	mux.HandleFunc("GET /sessions/{id}/compactions", r.handleListCompactions)
	mux.HandleFunc("GET /sessions/{id}/compactions/{eventId}", r.handleGetCompaction)

	return withMiddleware(mux, cfg)
}

// withMiddleware wraps the handler with common middleware.
func withMiddleware(handler http.Handler, cfg *Config) http.Handler {
	handler = jsonMiddleware(handler)
	handler = recoveryMiddleware(handler, cfg.Logger)
	return handler
}

// jsonMiddleware sets JSON content type for all responses.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func recoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if logger != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				}
				http.Error(w, `{"error":{"code":"internal_error","message":"internal server error"}}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
