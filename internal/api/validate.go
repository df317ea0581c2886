package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/engine"
)

// handleValidate implements POST /v1/validate. A missing user or session id
// is the only caller error; everything else yields a 200 decision.
func (d *Dependencies) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := readJSON(w, r, d.MaxBodyBytes, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	md := engine.ValidationMetadata{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Context:   req.Context,
	}
	if p := principalFromContext(r.Context()); p != nil {
		if md.Context == nil {
			md.Context = make(map[string]any, 1)
		}
		md.Context["api_key_id"] = p.KeyID
	}

	result, err := d.Validator.Validate(r.Context(), req.Text, md)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidMetadata) {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "user_id and session_id are required"})
			return
		}
		d.Logger.Error("validation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Validation failed"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
