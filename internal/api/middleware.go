package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/auth"
)

type contextKey int

const principalCtxKey contextKey = iota

// principalFromContext returns the authenticated caller, or nil when
// authentication is disabled.
func principalFromContext(ctx context.Context) *auth.Principal {
	v, _ := ctx.Value(principalCtxKey).(*auth.Principal)
	return v
}

// authMiddleware validates the Authorization header when an Authenticator
// is configured and stores the principal in the request context.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if d.Auth == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := auth.ExtractAPIKey(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		}

		p, err := d.Auth.Authenticate(r.Context(), key)
		switch {
		case errors.Is(err, auth.ErrAuthUnavailable):
			d.Logger.Error("auth unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Authentication unavailable"})
			return
		case err != nil:
			d.Logger.Warn("auth failed", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
			return
		}

		ctx := context.WithValue(r.Context(), principalCtxKey, p)
		next(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a body of at most maxBytes into v.
func readJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes)).Decode(v)
}

// unmatchedRoute labels requests no registered pattern matched.
const unmatchedRoute = "unmatched"

// routeLabel returns the mux pattern that serves r, so metric labels stay
// bounded by the route table.
func routeLabel(mux *http.ServeMux, r *http.Request) string {
	if _, pattern := mux.Handler(r); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

func (d *Dependencies) requestLogging(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeLabel(mux, r)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(sw, r)
		if d.Metrics != nil {
			d.Metrics.HTTPRequest(route, sw.status)
		}
		d.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
