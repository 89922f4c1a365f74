package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/youssefsiam38/contextpg/notifier"
	"github.com/youssefsiam38/contextpg/ui/service"
)

// Response wraps all API responses.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
	Meta  *Meta     `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	TotalCount int  `json:"total_count,omitempty"`
	HasMore    bool `json:"has_more,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// writeJSONWithMeta writes a JSON response with metadata.
func writeJSONWithMeta(w http.ResponseWriter, status int, data any, meta *Meta) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data, Meta: meta})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error: &APIError{Code: code, Message: message},
	})
}

// writeServiceError maps a service error onto a status code.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

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

// Dashboard handlers

func (rt *router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.GetDashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleEvents streams committed compactions as server-sent events until
// the client disconnects.
func (rt *router) handleEvents(w http.ResponseWriter, r *http.Request) {
	if rt.config.Notifier == nil {
		writeError(w, http.StatusNotImplemented, "events_not_configured", "no notifier configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "sse_not_supported", "SSE not supported")
		return
	}

	events := make(chan *notifier.Event, 16)
	unsubscribe := rt.config.Notifier.Subscribe(notifier.EventCompaction, func(event *notifier.Event) {
		select {
		case events <- event:
		default:
			// Slow client; drop rather than stall the notifier.
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			data, _ := json.Marshal(event)
			_, _ = w.Write([]byte("event: compaction\ndata: "))
			_, _ = w.Write(data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// Session handlers

func (rt *router) handleListSessions(w http.ResponseWriter, r *http.Request) {
	params := service.SessionListParams{
		Limit:  parseInt(r, "limit", rt.config.PageSize),
		Offset: parseOffset(r, "offset", 0),
	}

	list, err := rt.svc.ListSessions(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONWithMeta(w, http.StatusOK, list.Sessions, &Meta{
		TotalCount: list.TotalCount,
		HasMore:    list.HasMore,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
}

func (rt *router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.svc.GetSessionDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *router) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	includeRetired, _ := strconv.ParseBool(r.URL.Query().Get("retired"))

	conv, err := rt.svc.GetConversation(r.Context(), r.PathValue("id"), includeRetired)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (rt *router) handleGetContext(w http.ResponseWriter, r *http.Request) {
	msgs, err := rt.svc.GetContext(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// Compaction handlers

func (rt *router) handleListCompactions(w http.ResponseWriter, r *http.Request) {
	events, err := rt.svc.GetSessionCompactionHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (rt *router) handleGetCompaction(w http.ResponseWriter, r *http.Request) {
	event, err := rt.svc.GetCompactionEvent(r.Context(), r.PathValue("id"), r.PathValue("eventId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
