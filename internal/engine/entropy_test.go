package engine

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const entropyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()_+"

func cyclingString(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(entropyAlphabet[i%len(entropyAlphabet)])
	}
	return b.String()
}

func TestShannonEntropy(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty", "", 0},
		{"single symbol", "aaaaaaaa", 0},
		{"two symbols", "abababab", 1},
		{"four symbols", "abcdabcd", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShannonEntropy(tt.text)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ShannonEntropy(%q) = %f, want %f", tt.text, got, tt.want)
			}
		})
	}
}

func TestShannonEntropy_CountsRunes(t *testing.T) {
	// Each of these is multi-byte; per-rune counting sees two symbols.
	if got := ShannonEntropy("ééüüééüü"); got < 0.999 || got > 1.001 {
		t.Errorf("expected 1 bit/char, got %f", got)
	}
}

func TestEntropyAnalyzer_HighEntropy(t *testing.T) {
	text := cyclingString(200)
	h, f := EntropyAnalyzer{}.Analyze(text)
	if h <= DefaultEntropyThreshold {
		t.Fatalf("expected entropy > %.1f, got %f", DefaultEntropyThreshold, h)
	}
	if f == nil {
		t.Fatal("expected an entropy finding")
	}
	if f.Module != EntropyModule || f.Severity != SeverityMedium {
		t.Errorf("unexpected finding: %+v", f)
	}
	if f.PatternID != "entropy_001" || f.Category != "high_entropy" {
		t.Errorf("unexpected pattern: %s/%s", f.PatternID, f.Category)
	}
	if !strings.HasSuffix(f.MatchedText, "...") || utf8.RuneCountInString(f.MatchedText) != 53 {
		t.Errorf("expected 50-char excerpt plus ellipsis, got %q", f.MatchedText)
	}
	if f.Metadata["textLength"] != 200 {
		t.Errorf("expected textLength 200, got %v", f.Metadata["textLength"])
	}
	if f.Metadata["entropy"].(float64) != h {
		t.Errorf("metadata entropy mismatch")
	}
}

func TestEntropyAnalyzer_LowEntropy(t *testing.T) {
	_, f := EntropyAnalyzer{}.Analyze("please list the files in my home directory")
	if f != nil {
		t.Errorf("expected no finding for plain English, got %+v", f)
	}
}

func TestEntropyAnalyzer_CustomThreshold(t *testing.T) {
	_, f := EntropyAnalyzer{Threshold: 1.5}.Analyze("abcdabcd")
	if f == nil {
		t.Fatal("expected a finding above a lowered threshold")
	}
	if f.MatchedText != "abcdabcd" {
		t.Errorf("short text should not be truncated, got %q", f.MatchedText)
	}
}
