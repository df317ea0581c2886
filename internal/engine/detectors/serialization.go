package detectors

import (
	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

var serializationPatterns = []pattern{
	{"ser_001", "java_serialized", engine.SeverityHigh, regexp.MustCompile(`\brO0AB[A-Za-z0-9+/=]{4,}`), "base64 java serialized object", tierCore},
	{"ser_002", "java_serialized", engine.SeverityHigh, regexp.MustCompile(`(?i)\baced0005[0-9a-f]*`), "hex java serialized object", tierCore},
	{"ser_003", "java_gadget", engine.SeverityCritical, regexp.MustCompile(`(org\.apache\.commons\.collections\d?\.functors\.InvokerTransformer|ysoserial|com\.sun\.rowset\.JdbcRowSetImpl|org\.springframework\.beans\.factory\.ObjectFactory|TemplatesImpl)`), "known java gadget chain class", tierCore},
	{"ser_010", "python_yaml", engine.SeverityCritical, regexp.MustCompile(`!!python/(object(/apply|/new)?|name|module):`), "PyYAML object constructor tag", tierCore},
	{"ser_011", "python_pickle", engine.SeverityHigh, regexp.MustCompile(`(\bc(os|posix|subprocess|builtins|__builtin__)\n(system|popen|exec|eval)\n|\bgASV[A-Za-z0-9+/]{8,}|\bpickle\.loads?\s*\()`), "pickle payload or load call", tierCore},
	{"ser_012", "python_yaml", engine.SeverityMedium, regexp.MustCompile(`\byaml\.(unsafe_)?load\s*\(`), "unsafe yaml load", tierStrict},
	{"ser_020", "php_serialized", engine.SeverityHigh, regexp.MustCompile(`\bO:\d+:"[A-Za-z_\\][\w\\]*":\d+:\{`), "php serialized object", tierCore},
	{"ser_021", "dotnet_serialized", engine.SeverityHigh, regexp.MustCompile(`(AAEAAAD/////|System\.Windows\.Data\.ObjectDataProvider|TypeConfuseDelegate|"\$type"\s*:\s*"System\.)`), ".NET serialized payload or type hint", tierCore},
	{"ser_022", "node_serialize", engine.SeverityCritical, regexp.MustCompile(`_\$\$ND_FUNC\$\$_function`), "node-serialize function marker", tierCore},
	{"ser_023", "ruby_marshal", engine.SeverityMedium, regexp.MustCompile(`(\bBAh[A-Za-z0-9+/]{8,}|Marshal\.load\s*\()`), "ruby marshal payload or load call", tierCore},
	{"ser_030", "json_type_hint", engine.SeverityMedium, regexp.MustCompile(`"@type"\s*:\s*"(com|org|java)\.`), "JSON polymorphic type hint", tierCore},
}

// NewSerializationDetector returns the module that flags serialized object
// payloads and unsafe deserialization calls.
func NewSerializationDetector(sens engine.Sensitivity) engine.Detector {
	return &patternModule{
		name:        ModuleSerializationDetector,
		category:    "insecure_deserialization",
		patterns:    serializationPatterns,
		sensitivity: sens,
	}
}
