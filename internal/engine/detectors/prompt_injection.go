package detectors

import (
	regexp "github.com/wasilibs/go-re2"

	"github.com/triage-ai/warden/internal/engine"
)

var promptInjectionPatterns = []pattern{
	// Instruction override
	{"pi_001", "instruction_override", engine.SeverityHigh, regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|context)`), "override: ignore previous instructions", tierCore},
	{"pi_002", "instruction_override", engine.SeverityHigh, regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|your)\s+(instructions|rules|guidelines)`), "override: disregard instructions", tierCore},
	{"pi_003", "instruction_override", engine.SeverityHigh, regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions|context|rules)`), "override: forget instructions", tierCore},
	{"pi_007", "instruction_override", engine.SeverityMedium, regexp.MustCompile(`(?i)\bignore\s+(all\s+)?(your\s+|my\s+|the\s+|these\s+)?(instructions|rules|guidelines|guardrails)\b`), "override: ignore instructions", tierCore},
	{"pi_004", "instruction_override", engine.SeverityCritical, regexp.MustCompile(`(?i)override\s+(the\s+)?(system|safety|security)\s+(prompt|instructions|rules|policy)`), "explicit override attempt", tierCore},
	{"pi_005", "instruction_override", engine.SeverityCritical, regexp.MustCompile(`(?i)bypass\s+(the\s+)?(safety|security|content)\s+(filter|check|policy|rules)`), "explicit bypass attempt", tierCore},
	{"pi_006", "instruction_override", engine.SeverityHigh, regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|the|any)\s+(rules|guidelines|instructions|safety)`), "instruction negation", tierCore},

	// Identity override
	{"pi_010", "role_manipulation", engine.SeverityMedium, regexp.MustCompile(`(?i)you\s+are\s+now\s+(an?\s+)?\w+`), "identity override: you are now", tierCore},
	{"pi_011", "role_manipulation", engine.SeverityMedium, regexp.MustCompile(`(?i)from\s+now\s+on\s+you\s+(are|will|must|should)`), "identity override: from now on", tierCore},
	{"pi_012", "role_manipulation", engine.SeverityMedium, regexp.MustCompile(`(?i)your\s+new\s+(role|identity|persona|instructions)\s+(is|are)`), "identity override: new role", tierCore},
	{"pi_013", "role_manipulation", engine.SeverityLow, regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are|an?)\s+`), "identity override: act as", tierStrict},
	{"pi_014", "role_manipulation", engine.SeverityLow, regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)\s+`), "identity override: pretend", tierStrict},

	// Delimiter injection
	{"pi_020", "delimiter_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)\[\s*SYSTEM\s*\]`), "delimiter injection: [SYSTEM] tag", tierCore},
	{"pi_021", "delimiter_injection", engine.SeverityCritical, regexp.MustCompile(`(?i)<\|im_start\|>\s*system`), "delimiter injection: ChatML system tag", tierCore},
	{"pi_022", "delimiter_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)###\s*(SYSTEM|INSTRUCTION|NEW INSTRUCTION)`), "delimiter injection: markdown system header", tierCore},
	{"pi_023", "delimiter_injection", engine.SeverityHigh, regexp.MustCompile(`(?i)BEGININSTRUCTION`), "delimiter injection: BEGININSTRUCTION", tierCore},
	{"pi_024", "delimiter_injection", engine.SeverityMedium, regexp.MustCompile(`(?im)^\s*system\s*:\s*\S`), "delimiter injection: system role prefix", tierCore},

	// System prompt extraction
	{"pi_030", "prompt_extraction", engine.SeverityHigh, regexp.MustCompile(`(?i)(reveal|output|print|show|repeat)\s+(me\s+)?(your|the)\s+(system|initial|original|hidden)\s+(prompt|instructions|message)`), "system prompt extraction", tierCore},
	{"pi_031", "prompt_extraction", engine.SeverityMedium, regexp.MustCompile(`(?i)what\s+(are|is|were)\s+your\s+(system|initial|original|hidden)\s+(prompt|instructions|rules)`), "system prompt extraction", tierCore},

	// Jailbreak templates
	{"pi_040", "jailbreak", engine.SeverityCritical, regexp.MustCompile(`(?i)\bDAN\b.*\bdo\s+anything\s+now\b`), "DAN jailbreak: Do Anything Now", tierCore},
	{"pi_041", "jailbreak", engine.SeverityHigh, regexp.MustCompile(`(?i)(you\s+are\s+DAN|DAN\s+mode\s+(enabled|activated|on)|enable\s+DAN\s+mode)`), "DAN jailbreak", tierCore},
	{"pi_042", "jailbreak", engine.SeverityHigh, regexp.MustCompile(`(?i)(enter|enable)\s+(developer|debug|maintenance|god|sudo)\s+mode`), "mode jailbreak: developer/debug mode", tierCore},
	{"pi_043", "jailbreak", engine.SeverityHigh, regexp.MustCompile(`(?i)(developer|debug|maintenance|god|sudo)\s+mode\s+(enabled|activated|on)`), "mode jailbreak: mode enabled", tierCore},
	{"pi_044", "jailbreak", engine.SeverityHigh, regexp.MustCompile(`(?i)roleplay\s+as\s+(an?\s+)?(evil|unfiltered|unrestricted|uncensored)`), "roleplay jailbreak: evil/unfiltered character", tierCore},
	{"pi_045", "jailbreak", engine.SeverityHigh, regexp.MustCompile(`(?i)you\s+have\s+no\s+(restrictions|rules|limitations|guidelines|filters)`), "jailbreak: no restrictions claim", tierCore},
	{"pi_046", "jailbreak", engine.SeverityMedium, regexp.MustCompile(`(?i)without\s+(any\s+)?(ethical|moral|safety)\s+(guidelines|restrictions|constraints|considerations)`), "jailbreak: without ethical guidelines", tierCore},
	{"pi_047", "jailbreak", engine.SeverityMedium, regexp.MustCompile(`(?i)unlock\s+(all\s+)?(restrictions|capabilities|limitations)`), "jailbreak: unlock restrictions", tierCore},
	{"pi_048", "jailbreak", engine.SeverityHigh, regexp.MustCompile(`(?i)\buncensored\s+mode\b`), "jailbreak: uncensored mode", tierCore},
	{"pi_049", "jailbreak", engine.SeverityMedium, regexp.MustCompile(`(?i)\bjailbreak\b`), "explicit jailbreak keyword", tierCore},
	{"pi_050", "jailbreak", engine.SeverityMedium, regexp.MustCompile(`(?i)in\s+a\s+(hypothetical|fictional)\s+(world|scenario|universe)\s+where\s+(there\s+are\s+)?no\s+(rules|restrictions|laws)`), "fictional framing: world without rules", tierCore},

	// Encoding and smuggling tricks
	{"pi_060", "encoding_trick", engine.SeverityMedium, regexp.MustCompile(`(?i)(respond|reply|answer)\s+(only\s+)?in\s+(base64|hex|rot13|binary|morse)`), "encoding trick: respond in encoded format", tierCore},
	{"pi_061", "encoding_trick", engine.SeverityMedium, regexp.MustCompile(`(?i)encode\s+(your\s+)?(response|answer|output)\s+in\s+(base64|hex|rot13)`), "encoding trick: encode response", tierCore},
	{"pi_062", "encoding_trick", engine.SeverityLow, regexp.MustCompile(`(?i)split\s+(your\s+)?(response|answer)\s+into\s+(parts|segments|tokens)`), "token smuggling: split response", tierStrict},
	{"pi_063", "encoding_trick", engine.SeverityLow, regexp.MustCompile(`(?i)for\s+(educational|research|academic)\s+purposes\s+only`), "educational framing", tierParanoid},
	{"pi_064", "encoding_trick", engine.SeverityLow, regexp.MustCompile(`(?i)continue\s+from\s+where\s+you\s+left\s+off`), "continuation request", tierParanoid},
}

// NewPromptInjectionDetector returns the module that flags attempts to
// override, extract, or jailbreak model instructions.
func NewPromptInjectionDetector(sens engine.Sensitivity) engine.Detector {
	return &patternModule{
		name:        ModulePromptInjection,
		category:    "prompt_injection",
		patterns:    promptInjectionPatterns,
		sensitivity: sens,
	}
}
