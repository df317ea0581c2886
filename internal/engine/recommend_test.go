package engine

import (
	"slices"
	"testing"
)

func TestRecommendations_Empty(t *testing.T) {
	recs := Recommendations(nil, ActionAllow)
	if recs == nil || len(recs) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", recs)
	}
}

func TestRecommendations_NoDuplicates(t *testing.T) {
	findings := []Finding{
		{Module: "prompt_injection"},
		{Module: "prompt_injection"},
		{Module: "command_validator"},
		{Module: "unknown_a"},
		{Module: "unknown_b"},
	}
	recs := Recommendations(findings, ActionBlockNotify)
	seen := make(map[string]bool)
	for _, r := range recs {
		if seen[r] {
			t.Errorf("duplicate recommendation %q", r)
		}
		seen[r] = true
	}
	if !seen[genericRecommendation] {
		t.Error("expected generic recommendation for unknown modules")
	}
	for _, r := range blockRecommendations {
		if !seen[r] {
			t.Errorf("missing block recommendation %q", r)
		}
	}
}

func TestRecommendations_NoBlockLinesWhenAllowed(t *testing.T) {
	recs := Recommendations([]Finding{{Module: "url_validator"}}, ActionWarn)
	for _, r := range blockRecommendations {
		if slices.Contains(recs, r) {
			t.Errorf("unexpected block recommendation %q for warn", r)
		}
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 recommendations, got %v", recs)
	}
}

func TestRecommendations_OrderIndependent(t *testing.T) {
	a := []Finding{{Module: "secret_detector"}, {Module: EntropyModule}, {Module: "path_validator"}}
	b := []Finding{{Module: "path_validator"}, {Module: "secret_detector"}, {Module: EntropyModule}}
	if !slices.Equal(Recommendations(a, ActionBlock), Recommendations(b, ActionBlock)) {
		t.Error("recommendations depend on finding order")
	}
}
