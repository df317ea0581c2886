package engine

import (
	"context"
)

// Detector is the interface every detection module implements.
// Implementations must respect context deadlines and must not fail on
// malformed input; a returned error or panic counts as zero findings.
type Detector interface {
	// Name returns the module's unique identifier (e.g., "prompt_injection").
	Name() string

	// Scan returns the findings for text. Findings without a Module are
	// stamped with Name() by the orchestrator.
	Scan(ctx context.Context, text string) ([]Finding, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc struct {
	ModuleName string
	Fn         func(ctx context.Context, text string) ([]Finding, error)
}

func (d DetectorFunc) Name() string { return d.ModuleName }

func (d DetectorFunc) Scan(ctx context.Context, text string) ([]Finding, error) {
	return d.Fn(ctx, text)
}
