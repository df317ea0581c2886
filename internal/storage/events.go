package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/warden/internal/engine"
)

// EventStore persists security events. InsertEvents is called with batches
// and may see the same event twice after a retry; implementations must
// tolerate duplicates (events carry a unique EventID).
type EventStore interface {
	InsertEvents(ctx context.Context, events []*SecurityEvent) error
	Close() error
}

// EventReader reads back a user's most recent events, newest first.
type EventReader interface {
	EventsByUser(ctx context.Context, userID string, limit int) ([]*SecurityEvent, error)
}

// EventTypeValidation is the only event type the orchestrator emits.
const EventTypeValidation = "validation"

// PatternMatch is one finding as recorded in an event.
type PatternMatch struct {
	Module    string `json:"module"`
	PatternID string `json:"patternId"`
	Severity  string `json:"severity"`
}

// SecurityEvent is the persisted record of a single validation.
type SecurityEvent struct {
	EventID          string         `json:"event_id"`
	Timestamp        time.Time      `json:"timestamp"`
	EventType        string         `json:"event_type"`
	Severity         string         `json:"severity"`
	ActionTaken      string         `json:"action_taken"`
	UserID           string         `json:"user_id"`
	SessionID        string         `json:"session_id"`
	InputPreview     string         `json:"input_text"` // First 500 chars of the normalized text
	PatternsMatched  []PatternMatch `json:"patterns_matched"`
	Fingerprint      string         `json:"fingerprint"`
	Module           string         `json:"module"` // Module of the first finding, or "none"
	FindingCount     int            `json:"finding_count"`
	ModulesConcerned []string       `json:"modules_concerned"`
	Context          map[string]any `json:"context,omitempty"`
	CacheHit         bool           `json:"cache_hit"`
	LatencyMs        float32        `json:"latency_ms"`
}

// PayloadPreviewLength is the max chars stored in InputPreview.
const PayloadPreviewLength = 500

// NewSecurityEvent derives the persisted record from a completed validation.
func NewSecurityEvent(ev engine.Evaluation) *SecurityEvent {
	r := ev.Result

	patterns := make([]PatternMatch, 0, len(r.Findings))
	modules := make(map[string]struct{})
	for _, f := range r.Findings {
		patterns = append(patterns, PatternMatch{
			Module:    f.Module,
			PatternID: f.PatternID,
			Severity:  f.Severity.String(),
		})
		modules[f.Module] = struct{}{}
	}
	concerned := make([]string, 0, len(modules))
	for m := range modules {
		concerned = append(concerned, m)
	}
	sort.Strings(concerned)

	primary := "none"
	if len(r.Findings) > 0 {
		primary = r.Findings[0].Module
	}

	return &SecurityEvent{
		EventID:          uuid.NewString(),
		Timestamp:        r.Timestamp,
		EventType:        EventTypeValidation,
		Severity:         r.Severity.String(),
		ActionTaken:      r.Action.String(),
		UserID:           ev.Metadata.UserID,
		SessionID:        ev.Metadata.SessionID,
		InputPreview:     TruncatePayload(r.NormalizedText, PayloadPreviewLength),
		PatternsMatched:  patterns,
		Fingerprint:      r.Fingerprint,
		Module:           primary,
		FindingCount:     len(r.Findings),
		ModulesConcerned: concerned,
		Context:          ev.Metadata.Context,
		CacheHit:         r.CacheHit,
		LatencyMs:        float32(ev.Latency.Microseconds()) / 1000,
	}
}

// eventMetadata is the JSON document stored alongside each event.
type eventMetadata struct {
	FindingCount     int            `json:"findingCount"`
	ModulesConcerned []string       `json:"modulesConcerned"`
	Context          map[string]any `json:"context,omitempty"`
}

// MetadataJSON encodes the finding summary and caller context.
func (e *SecurityEvent) MetadataJSON() (string, error) {
	b, err := json.Marshal(eventMetadata{
		FindingCount:     e.FindingCount,
		ModulesConcerned: e.ModulesConcerned,
		Context:          e.Context,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PatternsJSON encodes PatternsMatched.
func (e *SecurityEvent) PatternsJSON() (string, error) {
	b, err := json.Marshal(e.PatternsMatched)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeColumns returns the JSON-encoded patterns and metadata columns of e.
// Stores skip an event that fails here rather than failing its batch.
func (e *SecurityEvent) EncodeColumns() (patterns, metadata string, err error) {
	if patterns, err = e.PatternsJSON(); err != nil {
		return "", "", fmt.Errorf("encode patterns: %w", err)
	}
	if metadata, err = e.MetadataJSON(); err != nil {
		return "", "", fmt.Errorf("encode metadata: %w", err)
	}
	return patterns, metadata, nil
}

// DecodeColumns fills the JSON-encoded columns of e.
func (e *SecurityEvent) DecodeColumns(patterns, metadata string) error {
	if patterns != "" {
		if err := json.Unmarshal([]byte(patterns), &e.PatternsMatched); err != nil {
			return err
		}
	}
	if metadata != "" {
		var md eventMetadata
		if err := json.Unmarshal([]byte(metadata), &md); err != nil {
			return err
		}
		e.FindingCount = md.FindingCount
		e.ModulesConcerned = md.ModulesConcerned
		e.Context = md.Context
	}
	return nil
}

// TruncatePayload returns the first N characters (runes) of a payload for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}
