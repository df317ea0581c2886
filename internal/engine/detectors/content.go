package detectors

import (
	"context"
	"encoding/base64"
	"unicode/utf8"

	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

const contentCategory = "content_policy"

var contentPatterns = []pattern{
	// Harmful content
	{"content_001", "violence", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(how\s+to\s+)?(make|build|create|construct)\s+(a\s+)?(bomb|explosive|pipe\s+bomb|molotov)\b`), "weapon or explosive construction", tierCore},
	{"content_002", "violence", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(how\s+to\s+)?(kill|murder|assassinate|poison)\s+(a\s+)?(person|someone|people|human)\b`), "instructions to harm people", tierCore},
	{"content_003", "self_harm", engine.SeverityHigh, regexp.MustCompile(`(?i)\bhow\s+to\s+(commit\s+suicide|kill\s+(myself|yourself)|end\s+(my|your)\s+life)\b`), "suicide instructions", tierCore},
	{"content_004", "self_harm", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(encourage|encouraging|promote|promoting)\s+(self[- ]?harm|suicide|cutting)\b`), "encouraging self-harm", tierCore},
	{"content_005", "csam", engine.SeverityCritical, regexp.MustCompile(`(?i)\b((child|minor|underage)\s+(sexual|porn|nude|naked|explicit)|(sexual|porn|nude|naked|explicit)\s+(child|minor|underage))\b`), "child sexual content", tierCore},
	{"content_006", "illegal_activity", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(synthesize|manufacture|produce|cook)\s+(methamphetamine|fentanyl|heroin|cocaine|meth)\b`), "drug manufacturing", tierCore},
	{"content_007", "illegal_activity", engine.SeverityMedium, regexp.MustCompile(`(?i)\bhow\s+to\s+(hack|breach|break\s+into)\s+(a\s+)?(bank|government|military|hospital)\b`), "hacking critical systems", tierCore},

	// Personal data
	{"content_020", "pii_ssn", engine.SeverityHigh, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "US social security number", tierCore},
	{"content_021", "pii_iban", engine.SeverityMedium, regexp.MustCompile(`\b[A-Z]{2}\d{2}[ ]?[A-Z0-9]{4}[ ]?(?:[A-Z0-9]{4}[ ]?){2,7}[A-Z0-9]{1,4}\b`), "IBAN", tierCore},
	{"content_022", "pii_email", engine.SeverityLow, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), "email address", tierStrict},
	{"content_023", "pii_phone", engine.SeverityLow, regexp.MustCompile(`(\+\d{1,3}[-\s.]?)?\(?\b\d{3}\)?[-\s.]\d{3}[-\s.]\d{4}\b`), "phone number", tierStrict},

	// Obfuscation
	{"content_040", "obfuscation_base64", engine.SeverityMedium, regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`), "long base64 run", tierCore},
	{"content_041", "obfuscation_hex", engine.SeverityMedium, regexp.MustCompile(`\b(0x)?[0-9a-fA-F]{64,}\b`), "long hex run", tierCore},
	{"content_042", "obfuscation_unicode_escape", engine.SeverityMedium, regexp.MustCompile(`(\\u[0-9a-fA-F]{4}){4,}|(\\x[0-9a-fA-F]{2}){4,}`), "escaped character sequence", tierCore},
	{"content_043", "obfuscation_invisible", engine.SeverityMedium, regexp.MustCompile(`[\x{200B}-\x{200D}\x{2060}\x{FEFF}]`), "zero-width character", tierCore},
	{"content_044", "obfuscation_bidi", engine.SeverityHigh, regexp.MustCompile(`[\x{202A}-\x{202E}\x{2066}-\x{2069}]`), "bidirectional override character", tierCore},
	{"content_045", "obfuscation_tag_chars", engine.SeverityHigh, regexp.MustCompile(`[\x{E0000}-\x{E007F}]`), "unicode tag characters", tierCore},
}

var (
	cardPattern      = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	base64Candidates = regexp.MustCompile(`[A-Za-z0-9+/]{16,}={0,2}`)
)

// ContentScanner flags harmful content, personal data and encoded or
// invisible-character obfuscation.
type ContentScanner struct {
	sensitivity engine.Sensitivity
}

func NewContentScanner(sens engine.Sensitivity) *ContentScanner {
	return &ContentScanner{sensitivity: sens}
}

func (s *ContentScanner) Name() string {
	return ModuleContentScanner
}

func (s *ContentScanner) Scan(ctx context.Context, text string) ([]engine.Finding, error) {
	if text == "" {
		return nil, nil
	}
	findings := scanPatterns(ctx, contentCategory, contentPatterns, text, s.sensitivity)

	for _, m := range cardPattern.FindAllString(text, 8) {
		if luhnValid(m) {
			findings = append(findings, newFinding(contentCategory, "content_024", "pii_card", engine.SeverityHigh, maskSecret(m), "payment card number"))
			break
		}
	}

	for _, c := range base64Candidates.FindAllString(text, 8) {
		if ctx.Err() != nil {
			break
		}
		decoded, ok := decodeBase64(c)
		if !ok {
			continue
		}
		if hits := scanPatterns(ctx, "", commandPatterns, decoded, engine.SensitivityMedium); len(hits) > 0 {
			f := newFinding(contentCategory, "content_046", "encoded_payload", engine.SeverityHigh, c, "base64 payload decodes to a shell command")
			f.Metadata["decodedPattern"] = hits[0].PatternID
			findings = append(findings, f)
			break
		}
	}
	return findings, nil
}

// decodeBase64 returns the decoded text when s is valid base64 of printable
// UTF-8.
func decodeBase64(s string) (string, bool) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return "", false
		}
	}
	if !utf8.Valid(b) {
		return "", false
	}
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\t' && c != '\r' {
			return "", false
		}
	}
	return string(b), true
}

func luhnValid(s string) bool {
	var sum, n int
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
		n++
	}
	return n >= 13 && n <= 19 && sum%10 == 0
}
