package engine

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordered threat classification shared by findings and
// aggregated results.
type Severity int

const (
	SeveritySafe Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the uppercase severity name.
func (s Severity) String() string {
	switch s {
	case SeveritySafe:
		return "SAFE"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SAFE":
		return SeveritySafe, nil
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeveritySafe, fmt.Errorf("ParseSeverity: unknown severity %q", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Action is the enforcement decision returned to callers.
type Action int

const (
	ActionAllow Action = iota
	ActionLog
	ActionWarn
	ActionBlock
	ActionBlockNotify
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionLog:
		return "log"
	case ActionWarn:
		return "warn"
	case ActionBlock:
		return "block"
	case ActionBlockNotify:
		return "block_notify"
	default:
		return "unspecified"
	}
}

// ParseAction converts a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow":
		return ActionAllow, nil
	case "log":
		return ActionLog, nil
	case "warn":
		return ActionWarn, nil
	case "block":
		return ActionBlock, nil
	case "block_notify":
		return ActionBlockNotify, nil
	default:
		return ActionAllow, fmt.Errorf("ParseAction: unknown action %q", s)
	}
}

// IsBlocking reports whether the request must be refused.
func (a Action) IsBlocking() bool {
	return a == ActionBlock || a == ActionBlockNotify
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MaxExcerptLength bounds Finding.MatchedText, in runes.
const MaxExcerptLength = 100

// Finding is one module's evidence of a potential threat.
type Finding struct {
	Module      string         `json:"module"`
	PatternID   string         `json:"patternId"`
	Category    string         `json:"category"`
	Severity    Severity       `json:"severity"`
	MatchedText string         `json:"matchedText"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Excerpt truncates s to at most n runes, appending "..." when cut.
func Excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ValidationMetadata identifies the caller of a validation. UserID and
// SessionID are mandatory.
type ValidationMetadata struct {
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	Context   map[string]any `json:"context,omitempty"`
}

// ValidationResult is built fresh for every Validate call, including cache hits.
type ValidationResult struct {
	Severity        Severity  `json:"severity"`
	Action          Action    `json:"action"`
	Findings        []Finding `json:"findings"`
	Fingerprint     string    `json:"fingerprint"`
	Timestamp       time.Time `json:"timestamp"`
	NormalizedText  string    `json:"normalizedText"`
	Recommendations []string  `json:"recommendations"`
	CacheHit        bool      `json:"cacheHit"`
}

// ActionDecision is what an ActionResolver returns.
type ActionDecision struct {
	Action    Action
	Escalated bool
	Reason    string
}

// BaselineAction is the default action for a severity. Policies may escalate
// above it but never below.
func BaselineAction(s Severity) Action {
	switch {
	case s >= SeverityCritical:
		return ActionBlockNotify
	case s == SeverityHigh:
		return ActionBlock
	case s == SeverityMedium:
		return ActionWarn
	case s == SeverityLow:
		return ActionLog
	default:
		return ActionAllow
	}
}
