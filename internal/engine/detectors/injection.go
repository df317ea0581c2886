package detectors

import (
	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

var injectionPatterns = []pattern{
	// SQL
	{"inj_001", "sql_injection", engine.SeverityCritical, regexp.MustCompile(`(?i)\b(DROP|TRUNCATE|ALTER)\s+(TABLE|DATABASE|SCHEMA)\b`), "destructive SQL statement", tierCore},
	{"inj_002", "sql_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`), "UNION-based SQL injection", tierCore},
	{"inj_003", "sql_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)['"]\s*;\s*(DROP|DELETE|TRUNCATE|ALTER|INSERT|UPDATE|EXEC)\b`), "stacked SQL query", tierCore},
	{"inj_004", "sql_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)(['"]\s*OR\s+'?\w+'?\s*=\s*'?\w+|\bOR\s+(\d+)\s*=\s*\d+)`), "tautology condition", tierCore},
	{"inj_005", "sql_injection", engine.SeverityMedium, regexp.MustCompile(`(?i)['"]\s*(--|#|/\*)`), "quote followed by SQL comment", tierCore},
	{"inj_006", "sql_injection", engine.SeverityCritical, regexp.MustCompile(`(?i)\b(xp_cmdshell|sp_oacreate|sp_execute_external_script)\b`), "SQL server command execution", tierCore},
	{"inj_007", "sql_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(INTO\s+(OUT|DUMP)FILE|LOAD_FILE\s*\(|pg_read_file\s*\(|COPY\s+\w+\s+(FROM|TO)\s+PROGRAM)`), "SQL file access", tierCore},
	{"inj_008", "sql_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)\b(SLEEP\s*\(\s*\d+|BENCHMARK\s*\(|WAITFOR\s+DELAY|pg_sleep\s*\()`), "time-based blind SQL injection", tierCore},
	{"inj_009", "sql_injection", engine.SeverityLow, regexp.MustCompile(`(?i)\bSELECT\s+.+\s+FROM\s+\w+`), "raw SQL query", tierParanoid},

	// NoSQL
	{"inj_020", "nosql_injection", engine.SeverityHigh, regexp.MustCompile(`["']?\$where["']?\s*:`), "MongoDB $where clause", tierCore},
	{"inj_021", "nosql_injection", engine.SeverityMedium, regexp.MustCompile(`["']?\$(ne|gt|gte|lt|regex|nin|exists|expr)["']?\s*:`), "MongoDB operator injection", tierCore},
	{"inj_022", "nosql_injection", engine.SeverityMedium, regexp.MustCompile(`\[\$(ne|gt|regex|nin)\]=`), "query-string operator injection", tierCore},

	// Template injection
	{"inj_030", "template_injection", engine.SeverityCritical, regexp.MustCompile(`\{\{[^}]*(__class__|__globals__|__builtins__|__subclasses__|__import__|config\.|request\.application|self\._TemplateReference)[^}]*\}\}`), "Jinja2 sandbox escape", tierCore},
	{"inj_031", "template_injection", engine.SeverityHigh, regexp.MustCompile(`\$\{[^}]*(Runtime|getRuntime|ProcessBuilder|T\(java\.lang|jndi:)[^}]*\}`), "expression language injection", tierCore},
	{"inj_032", "template_injection", engine.SeverityMedium, regexp.MustCompile(`(\{\{\s*\d+\s*[*+]\s*\d+\s*\}\}|\$\{\s*\d+\s*[*+]\s*\d+\s*\}|<%=\s*\d+\s*[*+]\s*\d+\s*%>)`), "template evaluation probe", tierCore},
	{"inj_033", "template_injection", engine.SeverityCritical, regexp.MustCompile(`(?i)\$\{jndi:(ldap|rmi|dns|ldaps|iiop)://`), "log4j JNDI lookup", tierCore},

	// Markup and protocol injection
	{"inj_040", "xss", engine.SeverityHigh, regexp.MustCompile(`(?i)<\s*script\b[^>]*>`), "script tag", tierCore},
	{"inj_041", "xss", engine.SeverityMedium, regexp.MustCompile(`(?i)<[^>]+\bon(error|load|click|mouseover|focus)\s*=`), "inline event handler", tierCore},
	{"inj_042", "xxe", engine.SeverityHigh, regexp.MustCompile(`(?i)<!ENTITY\s+%?\s*\w+\s+(SYSTEM|PUBLIC)\b`), "XML external entity", tierCore},
	{"inj_043", "ldap_injection", engine.SeverityMedium, regexp.MustCompile(`\)\s*\(\s*\|\s*\(\s*\w+\s*=\s*\*`), "LDAP filter injection", tierCore},
	{"inj_044", "xpath_injection", engine.SeverityMedium, regexp.MustCompile(`(?i)['"]\s*or\s+['"]?\w*['"]?\s*=\s*['"]?\w*\s*(\]|['"]\s*or)`), "XPath predicate injection", tierStrict},
	{"inj_045", "header_injection", engine.SeverityMedium, regexp.MustCompile(`(?i)(%0d%0a|\r\n)\s*(set-cookie|location|content-type)\s*:`), "CRLF header injection", tierCore},
}

// NewInjectionValidator returns the module that flags query, template and
// markup injection.
func NewInjectionValidator(sens engine.Sensitivity) engine.Detector {
	return &patternModule{
		name:        ModuleInjectionValidator,
		category:    "injection",
		patterns:    injectionPatterns,
		sensitivity: sens,
	}
}
