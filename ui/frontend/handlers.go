package frontend

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/youssefsiam38/contextpg/ui/service"
)

// parseInt parses an integer from a query parameter with a default.
// It applies bounds validation to prevent resource exhaustion.
func parseInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return service.ValidateLimit(i)
}

// parseOffset parses an offset from a query parameter with a default.
func parseOffset(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return service.ValidateOffset(i)
}

func (rt *router) serviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if rt.config.Logger != nil {
		rt.config.Logger.Error("inspector request failed", "error", err)
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (rt *router) renderPage(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	if err := rt.renderer.render(w, r, name, title, data); err != nil {
		rt.serviceError(w, err)
	}
}

// Main page handlers

func (rt *router) handleRedirectToDashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, rt.config.BasePath+"/dashboard", http.StatusTemporaryRedirect)
}

func (rt *router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.GetDashboardStats(r.Context())
	if err != nil {
		rt.serviceError(w, err)
		return
	}

	rt.renderPage(w, r, "dashboard.html", "Dashboard", map[string]any{
		"Stats": stats,
		"Model": rt.svc.Model(),
	})
}

func (rt *router) handleSessions(w http.ResponseWriter, r *http.Request) {
	params := service.SessionListParams{
		Limit:  parseInt(r, "limit", rt.config.PageSize),
		Offset: parseOffset(r, "offset", 0),
	}

	list, err := rt.svc.ListSessions(r.Context(), params)
	if err != nil {
		rt.serviceError(w, err)
		return
	}

	rt.renderPage(w, r, "sessions.html", "Sessions", map[string]any{
		"List":   list,
		"Limit":  params.Limit,
		"Offset": params.Offset,
	})
}

func (rt *router) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	includeRetired, _ := strconv.ParseBool(r.URL.Query().Get("retired"))

	detail, err := rt.svc.GetSessionDetail(r.Context(), id)
	if err != nil {
		rt.serviceError(w, err)
		return
	}
	conv, err := rt.svc.GetConversation(r.Context(), id, includeRetired)
	if err != nil {
		rt.serviceError(w, err)
		return
	}

	rt.renderPage(w, r, "session.html", "Session "+id, map[string]any{
		"Detail":       detail,
		"Conversation": conv,
	})
}
