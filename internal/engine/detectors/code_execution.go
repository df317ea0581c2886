package detectors

import (
	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

var codeExecutionPatterns = []pattern{
	// Python
	{"code_001", "python_eval", engine.SeverityHigh, regexp.MustCompile(`\b(eval|exec|compile)\s*\(\s*['"(]?[^)]*(import|__|os\.|open\(|subprocess)`), "python eval of dynamic code", tierCore},
	{"code_002", "python_import", engine.SeverityHigh, regexp.MustCompile(`__import__\s*\(\s*['"](os|subprocess|pty|socket|ctypes)['"]`), "dynamic import of a system module", tierCore},
	{"code_003", "python_introspection", engine.SeverityHigh, regexp.MustCompile(`__(class|base|mro|subclasses|globals|builtins)__`), "python object graph traversal", tierCore},
	{"code_004", "python_pty", engine.SeverityCritical, regexp.MustCompile(`pty\.spawn\s*\(\s*['"]/bin/(ba)?sh`), "python pty shell", tierCore},

	// JavaScript
	{"code_010", "js_eval", engine.SeverityHigh, regexp.MustCompile(`\b(eval|Function)\s*\(\s*(atob|unescape|decodeURIComponent|String\.fromCharCode)\s*\(`), "javascript eval of decoded string", tierCore},
	{"code_011", "js_eval", engine.SeverityMedium, regexp.MustCompile(`\bnew\s+Function\s*\(`), "javascript Function constructor", tierCore},
	{"code_012", "js_process", engine.SeverityHigh, regexp.MustCompile(`\bprocess\.(binding|mainModule\.require|dlopen)\b`), "node process internals", tierCore},
	{"code_013", "js_prototype_pollution", engine.SeverityHigh, regexp.MustCompile(`(__proto__["']?\s*[\[.=:]|constructor\s*\[\s*['"]prototype['"]\s*\]|constructor\.prototype\s*[\[.=])`), "prototype pollution", tierCore},

	// Other runtimes
	{"code_020", "php_exec", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(shell_exec|passthru|proc_open|popen|assert|system)\s*\(\s*\$_(GET|POST|REQUEST|COOKIE)`), "php execution of request data", tierCore},
	{"code_021", "php_exec", engine.SeverityHigh, regexp.MustCompile(`(?i)<\?php\s+[^?]*(eval|system|exec|shell_exec|base64_decode)\s*\(`), "php code with execution primitive", tierCore},
	{"code_022", "java_runtime", engine.SeverityHigh, regexp.MustCompile(`Runtime\.getRuntime\(\)\.exec\s*\(|new\s+ProcessBuilder\s*\(`), "java process execution", tierCore},
	{"code_023", "ruby_exec", engine.SeverityHigh, regexp.MustCompile(`\b(Kernel\.|IO\.)?(system|spawn|popen)\s*\(\s*["'][^"']*(rm|curl|wget|bash|sh)\b|%x\{[^}]+\}`), "ruby process execution", tierCore},
	{"code_024", "native_loading", engine.SeverityMedium, regexp.MustCompile(`\b(ctypes\.(CDLL|cdll)|LD_PRELOAD\s*=|dlopen\s*\()`), "native library loading", tierCore},

	// Generic
	{"code_030", "dynamic_eval", engine.SeverityMedium, regexp.MustCompile(`\b(eval|exec)\s*\(`), "dynamic evaluation call", tierStrict},
}

// NewCodeExecutionDetector returns the module that flags dynamic code
// evaluation across language runtimes.
func NewCodeExecutionDetector(sens engine.Sensitivity) engine.Detector {
	return &patternModule{
		name:        ModuleCodeExecutionDetector,
		category:    "code_execution",
		patterns:    codeExecutionPatterns,
		sensitivity: sens,
	}
}
