package detectors

import (
	"context"
	"testing"

	"github.com/triage-ai/warden/internal/engine"
)

func scan(t *testing.T, d engine.Detector, text string) []engine.Finding {
	t.Helper()
	findings, err := d.Scan(context.Background(), text)
	if err != nil {
		t.Fatalf("Scan(%q): unexpected error: %v", text, err)
	}
	return findings
}

func hasSubcategory(findings []engine.Finding, sub string) bool {
	for _, f := range findings {
		if f.Metadata["subcategory"] == sub {
			return true
		}
	}
	return false
}

func hasPattern(findings []engine.Finding, id string) bool {
	for _, f := range findings {
		if f.PatternID == id {
			return true
		}
	}
	return false
}

func maxSeverity(findings []engine.Finding) engine.Severity {
	max := engine.SeveritySafe
	for _, f := range findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}
