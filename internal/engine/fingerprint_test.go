package engine

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"RM -RF /", "rm -rf /"},
		{"  rm\t -rf\n\n/  ", "rm -rf /"},
		{"", ""},
		{"Hello   World", "hello world"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFingerprint_CaseAndWhitespaceInsensitive(t *testing.T) {
	a := Fingerprint("RM -RF /")
	b := Fingerprint("rm   -rf /")
	if a != b {
		t.Errorf("fingerprints differ: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %d", len(a))
	}
	if Fingerprint("rm -rf /tmp") == a {
		t.Error("different inputs should not share a fingerprint")
	}
}
