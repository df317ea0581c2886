package api

import (
	"github.com/triage-ai/warden/internal/storage"
)

// ValidateRequest is the JSON body for POST /v1/validate.
type ValidateRequest struct {
	Text      string         `json:"text"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context,omitempty"`
}

// EventListResp is the body of GET /v1/events.
type EventListResp struct {
	UserID string                   `json:"user_id"`
	Events []*storage.SecurityEvent `json:"events"`
	Count  int                      `json:"count"`
}

// ErrorResp is every non-2xx body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
