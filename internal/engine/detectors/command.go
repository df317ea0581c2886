package detectors

import (
	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

var commandPatterns = []pattern{
	// Destructive file operations
	{"cmd_001", "destructive_delete", engine.SeverityCritical, regexp.MustCompile(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s+)+(--no-preserve-root\s+)?[/~*.]`), "recursive or forced delete", tierCore},
	{"cmd_002", "destructive_delete", engine.SeverityCritical, regexp.MustCompile(`(?i)\b(mkfs(\.\w+)?|shred|wipefs)\s+`), "filesystem wipe", tierCore},
	{"cmd_003", "destructive_delete", engine.SeverityCritical, regexp.MustCompile(`(?i)\bdd\s+if=\S+\s+of=/dev/`), "raw device overwrite", tierCore},
	{"cmd_004", "destructive_delete", engine.SeverityCritical, regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), "fork bomb", tierCore},
	{"cmd_005", "permission_change", engine.SeverityHigh, regexp.MustCompile(`(?i)\bchmod\s+(-R\s+)?(0?777|[ugoa]*\+s)\b`), "world-writable or setuid permissions", tierCore},

	// Remote code piped into an interpreter
	{"cmd_010", "remote_execution", engine.SeverityCritical, regexp.MustCompile(`(?i)\b(curl|wget|fetch)\b[^|;&\n]*\|\s*(sudo\s+)?(ba|z|k|da)?sh\b`), "download piped to shell", tierCore},
	{"cmd_011", "pipe_to_shell", engine.SeverityHigh, regexp.MustCompile(`(?i)\|\s*(sudo\s+)?(ba|z|k|da)?sh\b`), "pipe to shell", tierCore},
	{"cmd_012", "pipe_to_shell", engine.SeverityHigh, regexp.MustCompile(`(?i)\|\s*(python[0-9.]*|perl|ruby|node|php)\b`), "pipe to interpreter", tierCore},
	{"cmd_013", "network_pipe", engine.SeverityHigh, regexp.MustCompile(`(?i)\|\s*(nc|ncat|netcat|socat|telnet)\b`), "output piped to network socket", tierCore},
	{"cmd_014", "remote_execution", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(curl|wget)\b[^\n]*\b(169\.254\.169\.254|metadata\.google\.internal|100\.100\.100\.200|localhost|127\.0\.0\.1)\b`), "fetch from internal endpoint", tierCore},

	// Substitution and chaining
	{"cmd_020", "command_substitution", engine.SeverityHigh, regexp.MustCompile("`[^`]*\\b(curl|wget|nc|bash|sh|rm|cat|whoami|id|python|perl)\\b[^`]*`"), "backtick command substitution", tierCore},
	{"cmd_021", "command_substitution", engine.SeverityHigh, regexp.MustCompile(`\$\(\s*(curl|wget|nc|bash|sh|rm|cat|whoami|id|python|perl|base64)\b[^)]*\)`), "dollar command substitution", tierCore},
	{"cmd_022", "command_chaining", engine.SeverityHigh, regexp.MustCompile(`(?i)(;|&&|\|\|)\s*(sudo\s+)?(rm|mkfs|dd|shutdown|reboot|halt|kill(all)?|chmod|chown|useradd|passwd)\b`), "chained dangerous command", tierCore},
	{"cmd_023", "shell_eval", engine.SeverityHigh, regexp.MustCompile(`(?i)\beval\s+["']?\$`), "eval of variable expansion", tierCore},

	// Reverse shells
	{"cmd_030", "reverse_shell_devtcp", engine.SeverityCritical, regexp.MustCompile(`(?i)\b(ba)?sh\s+-i\s*[>&]+\s*/dev/(tcp|udp)/`), "interactive shell redirected to socket", tierCore},
	{"cmd_031", "reverse_shell_bash", engine.SeverityCritical, regexp.MustCompile(`(?i)/dev/(tcp|udp)/\d{1,3}(\.\d{1,3}){3}/\d+`), "/dev/tcp socket to IP", tierCore},
	{"cmd_032", "reverse_shell_netcat", engine.SeverityCritical, regexp.MustCompile(`(?i)\b(nc|ncat|netcat)\b[^\n|;]*\s-[a-z]*[ec]\s*\S*(sh|cmd)`), "netcat with exec", tierCore},
	{"cmd_033", "reverse_shell_netcat", engine.SeverityHigh, regexp.MustCompile(`(?i)\bmkfifo\b[^\n]*\|\s*(nc|ncat|netcat)\b`), "fifo netcat relay", tierCore},

	// Interpreter process APIs
	{"cmd_040", "python_execution", engine.SeverityHigh, regexp.MustCompile(`\b(os\.(system|popen|exec[lv]p?e?)|subprocess\.(Popen|call|run|check_output|check_call))\s*\(`), "python process execution", tierCore},
	{"cmd_041", "nodejs_child_process", engine.SeverityHigh, regexp.MustCompile(`require\(\s*['"](node:)?child_process['"]\s*\)|\bchild_process\.(exec|spawn|execSync|spawnSync|fork)\s*\(`), "node child_process", tierCore},

	// Windows
	{"cmd_050", "powershell_encoded", engine.SeverityCritical, regexp.MustCompile(`(?i)\b(powershell|pwsh)(\.exe)?\b[^\n]*\s-(e|ec|enc|encodedcommand)\s+[A-Za-z0-9+/=]{8,}`), "encoded powershell command", tierCore},
	{"cmd_051", "powershell_download", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(IEX|Invoke-Expression)\b[^\n]*(DownloadString|Invoke-WebRequest|iwr)`), "powershell download and execute", tierCore},
	{"cmd_052", "windows_lolbins", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(certutil(\.exe)?\s+-urlcache|wmic\s+process\s+call\s+create|mshta(\.exe)?\s+\S+|regsvr32(\.exe)?\s+/s|rundll32(\.exe)?\s+\S+,|bitsadmin\s+/transfer)`), "windows living-off-the-land binary", tierCore},

	// Privilege escalation and persistence
	{"cmd_060", "privilege_escalation", engine.SeverityMedium, regexp.MustCompile(`(?i)\bsudo\s+(su\b|-i\b|-s\b|bash\b)`), "interactive root shell", tierCore},
	{"cmd_061", "persistence", engine.SeverityHigh, regexp.MustCompile(`(?i)(crontab\s+-[a-z]*r|>>?\s*~?/?\S*\.ssh/authorized_keys|>>?\s*/etc/(passwd|shadow|sudoers|crontab))`), "persistence or credential file write", tierCore},
	{"cmd_062", "sensitive_read", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(cat|less|more|head|tail|strings|xxd|base64)\s+\S*/etc/(passwd|shadow|sudoers|gshadow)\b`), "read of system credential file", tierCore},
	{"cmd_063", "output_encoding", engine.SeverityMedium, regexp.MustCompile(`(?i)\|\s*(base64|xxd|od)\b`), "output piped to encoder", tierCore},
	{"cmd_064", "privilege_escalation", engine.SeverityLow, regexp.MustCompile(`(?i)\bsudo\s+\S+`), "sudo usage", tierStrict},
	{"cmd_065", "command_chaining", engine.SeverityLow, regexp.MustCompile(`(;|&&|\|\|)\s*\S+`), "command chaining", tierParanoid},
}

// NewCommandValidator returns the module that flags shell and process
// execution payloads.
func NewCommandValidator(sens engine.Sensitivity) engine.Detector {
	return &patternModule{
		name:        ModuleCommandValidator,
		category:    "command_injection",
		patterns:    commandPatterns,
		sensitivity: sens,
	}
}
