package api

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/storage"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// handleListEvents implements GET /v1/events?user_id=...&limit=...
func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Events == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "No readable event store configured"})
		return
	}

	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "user_id query parameter is required"})
		return
	}
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := d.Events.EventsByUser(r.Context(), userID, limit)
	if errors.Is(err, storage.ErrNotReadable) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "No readable event store configured"})
		return
	}
	if err != nil {
		d.Logger.Error("failed to list events", zap.String("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	if events == nil {
		events = []*storage.SecurityEvent{}
	}
	writeJSON(w, http.StatusOK, EventListResp{UserID: userID, Events: events, Count: len(events)})
}
