// Package api is warden's HTTP surface.
package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/auth"
	"github.com/triage-ai/warden/internal/engine"
	"github.com/triage-ai/warden/internal/metrics"
	"github.com/triage-ai/warden/internal/storage"
)

// DefaultMaxBodyBytes bounds a validate request body.
const DefaultMaxBodyBytes = 1 << 20

// Validator is satisfied by *engine.Orchestrator.
type Validator interface {
	Validate(ctx context.Context, text string, md engine.ValidationMetadata) (*engine.ValidationResult, error)
	Modules() []string
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Validator Validator
	// Auth guards the /v1 routes. Nil leaves them open.
	Auth auth.Authenticator
	// Events serves GET /v1/events. Nil answers 503.
	Events       storage.EventReader
	Metrics      *metrics.Recorder
	Logger       *zap.Logger
	MaxBodyBytes int64
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/validate", deps.authMiddleware(deps.handleValidate))
	mux.HandleFunc("GET /v1/events", deps.authMiddleware(deps.handleListEvents))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"modules": deps.Validator.Modules(),
		})
	})
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	return corsMiddleware(deps.requestLogging(mux))
}
