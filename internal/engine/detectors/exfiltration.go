package detectors

import (
	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

var exfiltrationPatterns = []pattern{
	{"exfil_001", "http_upload", engine.SeverityHigh, regexp.MustCompile(`(?i)\bcurl\b[^\n]*\s(-d|--data(-binary|-raw|-urlencode)?|-F|--form|-T|--upload-file)\s+['"]?@`), "curl uploading a local file or stdin", tierCore},
	{"exfil_002", "pipe_to_network", engine.SeverityHigh, regexp.MustCompile(`(?i)\|\s*(curl|wget)\b[^\n]*(-X\s*POST|--data|-d\s|--post-(data|file)|-T\s)`), "output piped into an HTTP upload", tierCore},
	{"exfil_003", "capture_service", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(webhook\.site|requestbin\.(com|net)|pipedream\.net|burpcollaborator\.net|oastify\.com|interact\.sh|ngrok(-free)?\.(io|app)|canarytokens\.com)\b`), "known data capture endpoint", tierCore},
	{"exfil_004", "environment_dump", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(env|printenv|set)\s*\|\s*(curl|wget|nc|ncat)\b`), "environment piped to the network", tierCore},
	{"exfil_005", "dns_exfiltration", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(nslookup|dig|host|ping)\s+[^\n]*(\$\(|` + "`" + `)[^\n]*\.\w+`), "command output encoded into a DNS lookup", tierCore},
	{"exfil_006", "remote_copy", engine.SeverityMedium, regexp.MustCompile(`(?i)\b(scp|rsync|sftp)\s+[^\n]*\s\S+@[\w.\-]+:`), "copy to remote host", tierCore},
	{"exfil_007", "encoded_upload", engine.SeverityHigh, regexp.MustCompile(`(?i)\bbase64\b[^\n|]*\|\s*(curl|wget|nc)\b`), "encoded data sent to the network", tierCore},
	{"exfil_008", "markdown_image", engine.SeverityMedium, regexp.MustCompile(`!\[[^\]]*\]\(https?://[^)\s]+\?[^)\s]*=[^)\s]*\)`), "markdown image with query payload", tierCore},
	{"exfil_009", "instruction", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(send|post|upload|forward|leak|email)\s+(all\s+|the\s+|your\s+|this\s+)*(conversation|chat\s+history|system\s+prompt|credentials|secrets|api\s+keys?|passwords|env(ironment)?\s+variables)\s+(to|via)\b`), "instruction to transmit sensitive data", tierCore},
	{"exfil_010", "socket_transfer", engine.SeverityMedium, regexp.MustCompile(`(?i)\b(nc|ncat|netcat)\s+[\w.\-]+\s+\d{2,5}\s*<\s*\S+`), "file streamed over a raw socket", tierCore},
	{"exfil_011", "http_upload", engine.SeverityLow, regexp.MustCompile(`(?i)\bcurl\b[^\n]*-X\s*(POST|PUT)\b`), "HTTP write request", tierStrict},
}

// NewExfiltrationDetector returns the module that flags attempts to move
// data off the host.
func NewExfiltrationDetector(sens engine.Sensitivity) engine.Detector {
	return &patternModule{
		name:        ModuleExfiltrationDetector,
		category:    "data_exfiltration",
		patterns:    exfiltrationPatterns,
		sensitivity: sens,
	}
}
