package engine

import (
	"sort"
)

var moduleRecommendations = map[string][]string{
	"prompt_injection": {
		"Review input for potential prompt injection attempts",
		"Consider implementing input sanitization",
	},
	"command_validator": {
		"Validate and sanitize any system commands",
		"Use parameterized commands instead of string concatenation",
	},
	"url_validator": {
		"Validate and whitelist allowed URL patterns",
		"Implement URL parsing and domain verification",
	},
	"path_validator": {
		"Validate file paths against allowed directories",
		"Use path normalization to prevent traversal attacks",
	},
	"secret_detector": {
		"Remove any exposed secrets or credentials",
		"Rotate compromised credentials immediately",
	},
	"content_scanner": {
		"Review content for policy violations",
		"Implement content filtering or moderation",
	},
	"injection_validator": {
		"Sanitize inputs to prevent injection attacks",
		"Use parameterized queries and prepared statements",
	},
	"exfiltration_detector": {
		"Review outbound connections for data exfiltration attempts",
		"Implement egress filtering and data loss prevention",
	},
	"code_execution_detector": {
		"Review input for code execution attempts",
		"Restrict dynamic code evaluation and sandboxing",
	},
	"serialization_detector": {
		"Avoid deserializing untrusted data",
		"Use safe deserialization methods with type allowlists",
	},
	EntropyModule: {
		"Inspect input for encoded or obfuscated payloads",
	},
}

const genericRecommendation = "Review flagged input before acting on it"

var blockRecommendations = []string{
	"This request has been blocked due to security concerns",
	"Contact security team if you believe this is a false positive",
}

// Recommendations returns deduplicated remediation hints for findings.
// Modules are visited in sorted order so the output is independent of the
// order findings arrived in.
func Recommendations(findings []Finding, action Action) []string {
	if len(findings) == 0 {
		return []string{}
	}

	modules := make([]string, 0, 4)
	seenModule := make(map[string]struct{})
	for _, f := range findings {
		if _, ok := seenModule[f.Module]; ok {
			continue
		}
		seenModule[f.Module] = struct{}{}
		modules = append(modules, f.Module)
	}
	sort.Strings(modules)

	out := make([]string, 0, 2*len(modules)+len(blockRecommendations))
	seen := make(map[string]struct{})
	add := func(r string) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	for _, m := range modules {
		recs, ok := moduleRecommendations[m]
		if !ok {
			add(genericRecommendation)
			continue
		}
		for _, r := range recs {
			add(r)
		}
	}
	if action.IsBlocking() {
		for _, r := range blockRecommendations {
			add(r)
		}
	}
	return out
}
