// Package detectors holds the detection modules the orchestrator dispatches
// to. Each module is a table of pre-compiled RE2 patterns plus, where a
// regex is not enough, a small amount of structural parsing.
package detectors

import (
	"context"

	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

// tier gates a pattern on the module's sensitivity.
type tier int

const (
	tierCore     tier = iota // reported at every sensitivity
	tierStrict               // strict and paranoid only
	tierParanoid             // paranoid only
)

func (t tier) enabled(s engine.Sensitivity) bool {
	switch t {
	case tierStrict:
		return s >= engine.SensitivityStrict
	case tierParanoid:
		return s >= engine.SensitivityParanoid
	default:
		return true
	}
}

// pattern is one detection rule. Compiled once at startup, never during a
// request.
type pattern struct {
	id       string
	sub      string
	severity engine.Severity
	re       *regexp.Regexp
	detail   string
	tier     tier
}

// scanPatterns reports the first match of every enabled pattern in text.
func scanPatterns(ctx context.Context, category string, patterns []pattern, text string, sens engine.Sensitivity) []engine.Finding {
	var findings []engine.Finding
	for _, p := range patterns {
		if ctx.Err() != nil {
			break
		}
		if !p.tier.enabled(sens) {
			continue
		}
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		sev, ok := sens.Adjust(p.severity)
		if !ok {
			continue
		}
		findings = append(findings, engine.Finding{
			PatternID:   p.id,
			Category:    category,
			Severity:    sev,
			MatchedText: text[loc[0]:loc[1]],
			Metadata: map[string]any{
				"subcategory": p.sub,
				"description": p.detail,
				"offset":      loc[0],
			},
		})
	}
	return findings
}

// patternModule is a detection module made only of a pattern table.
type patternModule struct {
	name        string
	category    string
	patterns    []pattern
	sensitivity engine.Sensitivity
}

func (m *patternModule) Name() string {
	return m.name
}

func (m *patternModule) Scan(ctx context.Context, text string) ([]engine.Finding, error) {
	if text == "" {
		return nil, nil
	}
	return scanPatterns(ctx, m.category, m.patterns, text, m.sensitivity), nil
}

// newFinding builds a finding for checks that are not a single regex match.
func newFinding(category, id, sub string, sev engine.Severity, matched, detail string) engine.Finding {
	return engine.Finding{
		PatternID:   id,
		Category:    category,
		Severity:    sev,
		MatchedText: matched,
		Metadata: map[string]any{
			"subcategory": sub,
			"description": detail,
		},
	}
}
