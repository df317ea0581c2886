package engine

import (
	"sort"
	"strings"
)

// ScorerConfig holds the corroboration rule for severity aggregation.
type ScorerConfig struct {
	// CorroborationFloor is the per-finding severity that counts toward
	// corroboration (default HIGH).
	CorroborationFloor Severity
	// CorroboratingModules is how many distinct modules must reach the
	// floor before the aggregate escalates to CRITICAL (default 2).
	CorroboratingModules int
}

// DefaultScorerConfig returns the standard corroboration rule.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		CorroborationFloor:   SeverityHigh,
		CorroboratingModules: 2,
	}
}

// ScoreResult holds the aggregated severity and how it was reached.
type ScoreResult struct {
	Severity  Severity
	Base      Severity
	Escalated bool
	Reason    string
	// Corroborating lists, sorted, the modules at or above the floor.
	Corroborating []string
}

// SeverityScorer aggregates findings into one Severity. It is stateless and
// safe for concurrent use.
type SeverityScorer struct {
	cfg ScorerConfig
}

// NewSeverityScorer returns a scorer using DefaultScorerConfig.
func NewSeverityScorer() *SeverityScorer {
	return &SeverityScorer{cfg: DefaultScorerConfig()}
}

// NewSeverityScorerWithConfig returns a scorer using cfg.
func NewSeverityScorerWithConfig(cfg ScorerConfig) *SeverityScorer {
	if cfg.CorroboratingModules < 1 {
		cfg.CorroboratingModules = 2
	}
	return &SeverityScorer{cfg: cfg}
}

// CalculateSeverity returns the aggregate severity of findings.
func (s *SeverityScorer) CalculateSeverity(findings []Finding) Severity {
	return s.Score(findings).Severity
}

// Score applies the rules (in order):
//  1. Base = max finding severity, SAFE when empty.
//  2. If CorroboratingModules distinct modules each report a finding at or
//     above CorroborationFloor → CRITICAL.
//
// The result does not depend on the order of findings.
func (s *SeverityScorer) Score(findings []Finding) ScoreResult {
	base := SeveritySafe
	strong := make(map[string]struct{})

	for _, f := range findings {
		if f.Severity > base {
			base = f.Severity
		}
		if f.Severity >= s.cfg.CorroborationFloor {
			strong[f.Module] = struct{}{}
		}
	}

	modules := make([]string, 0, len(strong))
	for m := range strong {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	res := ScoreResult{
		Severity:      base,
		Base:          base,
		Corroborating: modules,
	}
	if len(modules) >= s.cfg.CorroboratingModules && base < SeverityCritical {
		res.Severity = SeverityCritical
		res.Escalated = true
	}
	if len(modules) > 0 {
		res.Reason = "corroborated by: " + strings.Join(modules, ", ")
	}
	return res
}
