package detectors

import (
	"context"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

const urlCategory = "ssrf"

var (
	urlPattern = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.\-]{1,15}://[^\s'"<>` + "`" + `|\\]+`)

	urlInlinePatterns = []pattern{
		{"url_020", "script_scheme", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(javascript|vbscript):\s*\S`), "script URL scheme", tierCore},
		{"url_021", "data_uri", engine.SeverityMedium, regexp.MustCompile(`(?i)\bdata:(text/html|application/(x-)?javascript|image/svg\+xml)[;,]`), "active content data URI", tierCore},
	}

	dangerousSchemes = map[string]bool{
		"file": true, "gopher": true, "dict": true, "ldap": true, "ldaps": true,
		"jar": true, "netdoc": true, "php": true, "expect": true, "tftp": true,
	}

	metadataHosts = map[string]bool{
		"169.254.169.254":          true,
		"169.254.170.2":            true,
		"100.100.100.200":          true,
		"fd00:ec2::254":            true,
		"metadata":                 true,
		"metadata.google.internal": true,
		"metadata.azure.com":       true,
		"instance-data":            true,
	}

	// Hosts commonly used to receive exfiltrated data or stage payloads.
	suspiciousHosts = []string{
		"webhook.site", "requestbin", "pipedream.net", "ngrok.io", "ngrok-free.app",
		"burpcollaborator.net", "oastify.com", "interact.sh", "pastebin.com",
		"transfer.sh", "hastebin.com", "0x0.st", "trycloudflare.com",
	}
)

// URLValidator flags URLs that point at internal infrastructure, cloud
// metadata endpoints or dangerous schemes.
type URLValidator struct {
	sensitivity engine.Sensitivity
}

func NewURLValidator(sens engine.Sensitivity) *URLValidator {
	return &URLValidator{sensitivity: sens}
}

func (v *URLValidator) Name() string {
	return ModuleURLValidator
}

func (v *URLValidator) Scan(ctx context.Context, text string) ([]engine.Finding, error) {
	if text == "" {
		return nil, nil
	}
	findings := scanPatterns(ctx, urlCategory, urlInlinePatterns, text, v.sensitivity)

	seen := make(map[string]bool)
	for _, raw := range urlPattern.FindAllString(text, 32) {
		if ctx.Err() != nil {
			break
		}
		raw = strings.TrimRight(raw, ".,;:)]}")
		for _, f := range v.checkURL(raw) {
			key := f.PatternID + "\x00" + raw
			if seen[key] {
				continue
			}
			seen[key] = true
			sev, ok := v.sensitivity.Adjust(f.Severity)
			if !ok {
				continue
			}
			f.Severity = sev
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func (v *URLValidator) checkURL(raw string) []engine.Finding {
	u, err := url.Parse(raw)
	if err != nil {
		if v.sensitivity >= engine.SensitivityStrict {
			return []engine.Finding{newFinding(urlCategory, "url_030", "malformed_url", engine.SeverityLow, raw, "unparseable URL")}
		}
		return nil
	}

	var out []engine.Finding
	scheme := strings.ToLower(u.Scheme)
	if dangerousSchemes[scheme] {
		out = append(out, newFinding(urlCategory, "url_001", "dangerous_scheme", engine.SeverityHigh, raw, "dangerous URL scheme: "+scheme))
	}
	if u.User != nil {
		out = append(out, newFinding(urlCategory, "url_002", "embedded_credentials", engine.SeverityMedium, raw, "userinfo embedded in URL"))
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return out
	}

	if metadataHosts[host] {
		return append(out, newFinding(urlCategory, "url_003", "cloud_metadata", engine.SeverityCritical, raw, "cloud metadata endpoint"))
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") || strings.HasSuffix(host, ".local") {
		return append(out, newFinding(urlCategory, "url_004", "internal_network", engine.SeverityHigh, raw, "internal hostname"))
	}

	if addr, obfuscated, ok := parseHostIP(host); ok {
		addr = addr.Unmap()
		switch {
		case metadataHosts[addr.String()]:
			out = append(out, newFinding(urlCategory, "url_003", "cloud_metadata", engine.SeverityCritical, raw, "cloud metadata endpoint"))
		case addr.IsLoopback() || addr.IsUnspecified():
			out = append(out, newFinding(urlCategory, "url_004", "internal_network", engine.SeverityHigh, raw, "loopback address"))
		case addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
			out = append(out, newFinding(urlCategory, "url_005", "internal_network", engine.SeverityHigh, raw, "private network address"))
		case v.sensitivity >= engine.SensitivityStrict:
			out = append(out, newFinding(urlCategory, "url_006", "raw_ip", engine.SeverityLow, raw, "URL uses a literal IP address"))
		}
		if obfuscated {
			out = append(out, newFinding(urlCategory, "url_007", "obfuscated_ip", engine.SeverityHigh, raw, "numeric or hex encoded IP host"))
		}
		return out
	}

	for _, s := range suspiciousHosts {
		if host == s || strings.HasSuffix(host, "."+s) || strings.HasPrefix(host, s) {
			out = append(out, newFinding(urlCategory, "url_008", "suspicious_domain", engine.SeverityMedium, raw, "known data capture or paste host"))
			break
		}
	}
	if strings.HasSuffix(host, ".onion") {
		out = append(out, newFinding(urlCategory, "url_009", "anonymizing_network", engine.SeverityMedium, raw, "tor hidden service"))
	}
	return out
}

// parseHostIP parses dotted, bracketed and integer or hex encoded IPv4 hosts.
// obfuscated reports whether a non-canonical encoding was used.
func parseHostIP(host string) (addr netip.Addr, obfuscated, ok bool) {
	if a, err := netip.ParseAddr(host); err == nil {
		return a, false, true
	}
	var n uint64
	var err error
	switch {
	case strings.HasPrefix(host, "0x"):
		n, err = strconv.ParseUint(host[2:], 16, 32)
	case isDigits(host):
		n, err = strconv.ParseUint(host, 10, 32)
	default:
		return netip.Addr{}, false, false
	}
	if err != nil {
		return netip.Addr{}, false, false
	}
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), true, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
