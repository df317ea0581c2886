package detectors

import (
	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

var pathPatterns = []pattern{
	{"path_001", "directory_traversal", engine.SeverityHigh, regexp.MustCompile(`(\.\.[/\\]){2,}`), "repeated parent directory traversal", tierCore},
	{"path_002", "encoded_traversal", engine.SeverityHigh, regexp.MustCompile(`(?i)(%2e%2e|%252e%252e|\.\.%2f|%2e%2e%2f|\.\.%5c|%c0%ae%c0%ae)`), "URL-encoded traversal", tierCore},
	{"path_003", "null_byte", engine.SeverityHigh, regexp.MustCompile(`(?i)(%00|\\x00|\\0)\.\w+`), "null byte extension truncation", tierCore},
	{"path_004", "directory_traversal", engine.SeverityMedium, regexp.MustCompile(`(^|[\s'"=(])\.\.[/\\]`), "parent directory traversal", tierStrict},

	// Sensitive system files
	{"path_010", "sensitive_file", engine.SeverityHigh, regexp.MustCompile(`/etc/(passwd|shadow|sudoers|gshadow|master\.passwd)\b`), "system credential file", tierCore},
	{"path_011", "sensitive_file", engine.SeverityHigh, regexp.MustCompile(`(?i)(~|/home/\w+|/root)?/\.ssh/(id_(rsa|dsa|ecdsa|ed25519)|authorized_keys|known_hosts)\b`), "SSH key material", tierCore},
	{"path_012", "sensitive_file", engine.SeverityHigh, regexp.MustCompile(`(?i)\.(aws/credentials|docker/config\.json|kube/config|netrc|pgpass|git-credentials)\b`), "cloud or tool credential file", tierCore},
	{"path_013", "sensitive_file", engine.SeverityHigh, regexp.MustCompile(`/proc/(self|\d+)/(environ|cmdline|mem|maps)\b`), "process introspection file", tierCore},
	{"path_014", "sensitive_file", engine.SeverityHigh, regexp.MustCompile(`(?i)c:\\windows\\(system32\\config\\sam|win\.ini|repair\\sam)`), "windows credential store", tierCore},
	{"path_015", "sensitive_file", engine.SeverityMedium, regexp.MustCompile(`(?i)(^|[\s/'"])\.env(\.\w+)?\b`), "dotenv file", tierCore},
	{"path_016", "sensitive_directory", engine.SeverityMedium, regexp.MustCompile(`(^|[\s'"=:])/(root|etc|boot|var/log|sys|dev/(sd[a-z]|mem|kmem))(/|\b)`), "system directory access", tierCore},
	{"path_017", "sensitive_file", engine.SeverityLow, regexp.MustCompile(`(?i)\.(pem|key|p12|pfx|keystore|jks)\b`), "key or certificate file", tierStrict},
	{"path_018", "absolute_path", engine.SeverityLow, regexp.MustCompile(`(^|\s)/(usr|opt|srv|tmp)/\S+`), "absolute system path", tierParanoid},
}

// NewPathValidator returns the module that flags directory traversal and
// access to sensitive filesystem locations.
func NewPathValidator(sens engine.Sensitivity) engine.Detector {
	return &patternModule{
		name:        ModulePathValidator,
		category:    "path_traversal",
		patterns:    pathPatterns,
		sensitivity: sens,
	}
}
