package engine

import (
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	// DefaultEntropyThreshold is the bits/char above which input is flagged.
	DefaultEntropyThreshold = 4.5

	EntropyModule    = "entropy_analysis"
	entropyPatternID = "entropy_001"
	entropyCategory  = "high_entropy"
	entropyExcerpt   = 50
)

// ShannonEntropy returns the Shannon entropy of text in bits per character.
// Characters are runes, so multi-byte symbols count once.
func ShannonEntropy(text string) float64 {
	if text == "" {
		return 0
	}
	counts := make(map[rune]int)
	n := 0
	for _, r := range text {
		counts[r]++
		n++
	}
	total := float64(n)
	var h float64
	for _, c := range counts {
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}

// EntropyAnalyzer flags likely-obfuscated input.
type EntropyAnalyzer struct {
	Threshold float64
}

// Analyze returns the entropy of text and, when it exceeds the threshold,
// a MEDIUM finding describing it.
func (a EntropyAnalyzer) Analyze(text string) (float64, *Finding) {
	threshold := a.Threshold
	if threshold <= 0 {
		threshold = DefaultEntropyThreshold
	}
	h := ShannonEntropy(text)
	if h <= threshold {
		return h, nil
	}
	length := utf8.RuneCountInString(text)
	return h, &Finding{
		Module:      EntropyModule,
		PatternID:   entropyPatternID,
		Category:    entropyCategory,
		Severity:    SeverityMedium,
		MatchedText: Excerpt(text, entropyExcerpt),
		Metadata: map[string]any{
			"entropy":     h,
			"textLength":  length,
			"category":    entropyCategory,
			"description": fmt.Sprintf("input has high Shannon entropy (%.2f bits/char), indicating possible obfuscation", h),
		},
	}
}
