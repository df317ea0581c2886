package detectors

import (
	"testing"

	"github.com/triage-ai/warden/internal/engine"
)

func TestCodeExecutionDetector_Detects(t *testing.T) {
	d := NewCodeExecutionDetector(engine.SensitivityMedium)

	tests := []struct {
		name    string
		payload string
		sub     string
	}{
		{"python exec import", `exec("import os; os.system('id')")`, "python_eval"},
		{"dunder import", `__import__('os').system('id')`, "python_import"},
		{"object traversal", `().__class__.__bases__[0].__subclasses__()`, "python_introspection"},
		{"pty shell", `python -c 'import pty; pty.spawn("/bin/bash")'`, "python_pty"},
		{"js eval atob", `eval(atob("YWxlcnQoMSk="))`, "js_eval"},
		{"function constructor", `new Function("return process")()`, "js_eval"},
		{"prototype pollution", `{"__proto__": {"isAdmin": true}}`, "js_prototype_pollution"},
		{"php request exec", `<?php system($_GET['cmd']); ?>`, "php_exec"},
		{"java runtime", `Runtime.getRuntime().exec("calc")`, "java_runtime"},
		{"ld preload", "LD_PRELOAD=/tmp/evil.so ls", "native_loading"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := scan(t, d, tt.payload)
			if !hasSubcategory(findings, tt.sub) {
				t.Fatalf("expected subcategory %q in %+v", tt.sub, findings)
			}
		})
	}
}

func TestCodeExecutionDetector_Safe(t *testing.T) {
	d := NewCodeExecutionDetector(engine.SensitivityMedium)

	for _, payload := range []string{
		"the committee will evaluate the proposal",
		"execute the migration plan on Monday",
		"def add(a, b): return a + b",
		"",
	} {
		if findings := scan(t, d, payload); len(findings) != 0 {
			t.Errorf("expected no findings for %q, got %+v", payload, findings)
		}
	}
}

func TestCodeExecutionDetector_StrictEval(t *testing.T) {
	const payload = "result = eval(expression)"
	if findings := scan(t, NewCodeExecutionDetector(engine.SensitivityMedium), payload); len(findings) != 0 {
		t.Fatalf("medium: expected no findings, got %+v", findings)
	}
	if findings := scan(t, NewCodeExecutionDetector(engine.SensitivityStrict), payload); !hasPattern(findings, "code_030") {
		t.Errorf("strict: expected code_030, got %+v", findings)
	}
}
