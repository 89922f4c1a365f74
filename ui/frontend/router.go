package frontend

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/youssefsiam38/contextpg/ui/service"
)

//go:embed templates/*
var templatesFS embed.FS

// Config holds frontend router configuration.
type Config struct {
	// BasePath is the URL prefix where the UI is mounted.
	// All navigation links will be prefixed with this path.
	BasePath string

	// PageSize for pagination.
	PageSize int

	// RefreshInterval for page auto-refresh. Zero disables it.
	RefreshInterval time.Duration

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

// router holds the frontend router state.
type router struct {
	svc      *service.Service
	config   *Config
	renderer *renderer
}

// NewRouter creates a new frontend router.
func NewRouter(svc *service.Service, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{
			PageSize:        25,
			RefreshInterval: 5 * time.Second,
		}
	}

	// Page templates all define "content", so each page is parsed into a
	// clone of the shared layout at render time.
	baseTmpl := template.Must(template.New("").
		Funcs(templateFuncs()).
		ParseFS(templatesFS,
			"templates/base.html",
			"templates/session-rows.html",
		))

	r := &router{
		svc:      svc,
		config:   cfg,
		renderer: newRenderer(baseTmpl, templatesFS, cfg),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", r.handleRedirectToDashboard)
	mux.HandleFunc("GET /dashboard", r.handleDashboard)
	mux.HandleFunc("GET /sessions", r.handleSessions)
	mux.HandleFunc("GET /sessions/{id}", r.handleSessionDetail)

	return withFrontendMiddleware(mux, cfg)
}

// withFrontendMiddleware wraps the handler with frontend-specific middleware.
func withFrontendMiddleware(handler http.Handler, cfg *Config) http.Handler {
	handler = frontendRecoveryMiddleware(handler, cfg.Logger)
	return handler
}

// frontendRecoveryMiddleware recovers from panics.
func frontendRecoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if logger != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatTime":     formatTime,
		"formatTimeAgo":  formatTimeAgo,
		"formatTokens":   formatTokens,
		"truncate":       truncate,
		"usageColor":     usageColor,
		"reasonColor":    reasonColor,
		"markdown":       markdown,
		"add":            add,
		"sub":            sub,
		"mulFloat":       mulFloat,
		"dict":           dictFunc,
	}
}

// dictFunc creates a map from key-value pairs for use in templates.
// Usage: {{template "foo" (dict "key1" val1 "key2" val2)}}
func dictFunc(values ...any) map[string]any {
	if len(values)%2 != 0 {
		return nil
	}
	dict := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		dict[key] = values[i+1]
	}
	return dict
}
