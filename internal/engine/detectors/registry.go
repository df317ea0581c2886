package detectors

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/triage-ai/warden/internal/engine"
)

// Module names as they appear in findings, configuration and events.
const (
	ModulePromptInjection       = "prompt_injection"
	ModuleCommandValidator      = "command_validator"
	ModuleURLValidator          = "url_validator"
	ModulePathValidator         = "path_validator"
	ModuleSecretDetector        = "secret_detector"
	ModuleContentScanner        = "content_scanner"
	ModuleInjectionValidator    = "injection_validator"
	ModuleExfiltrationDetector  = "exfiltration_detector"
	ModuleCodeExecutionDetector = "code_execution_detector"
	ModuleSerializationDetector = "serialization_detector"
	ModuleRemoteClassifier      = "ml_classifier"
)

// Names lists the built-in modules in dispatch order.
var Names = []string{
	ModulePromptInjection,
	ModuleCommandValidator,
	ModuleURLValidator,
	ModulePathValidator,
	ModuleSecretDetector,
	ModuleContentScanner,
	ModuleInjectionValidator,
	ModuleExfiltrationDetector,
	ModuleCodeExecutionDetector,
	ModuleSerializationDetector,
}

// BuildOptions controls the optional parts of Build.
type BuildOptions struct {
	// Gitleaks adds the gitleaks rule set to the secret module.
	Gitleaks bool
	// Remote adds the gRPC classifier module when non-nil.
	Remote *RemoteConfig
	Logger *zap.Logger
}

// Build constructs every enabled module, each at its configured
// sensitivity.
func Build(policy engine.ModulePolicy, opts BuildOptions) ([]engine.Detector, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var out []engine.Detector
	for _, name := range Names {
		mc := policy.Get(name)
		if !mc.IsEnabled() {
			continue
		}
		d, err := newModule(name, mc.Sensitivity, opts)
		if err != nil {
			return nil, fmt.Errorf("detectors.Build: %s: %w", name, err)
		}
		out = append(out, d)
	}

	if opts.Remote != nil && policy.Get(ModuleRemoteClassifier).IsEnabled() {
		rc, err := NewRemoteClassifier(*opts.Remote, logger)
		if err != nil {
			return nil, fmt.Errorf("detectors.Build: %w", err)
		}
		out = append(out, rc)
	}

	logger.Info("detection modules built", zap.Int("count", len(out)))
	return out, nil
}

func newModule(name string, sens engine.Sensitivity, opts BuildOptions) (engine.Detector, error) {
	switch name {
	case ModulePromptInjection:
		return NewPromptInjectionDetector(sens), nil
	case ModuleCommandValidator:
		return NewCommandValidator(sens), nil
	case ModuleURLValidator:
		return NewURLValidator(sens), nil
	case ModulePathValidator:
		return NewPathValidator(sens), nil
	case ModuleSecretDetector:
		return NewSecretDetector(sens, opts.Gitleaks)
	case ModuleContentScanner:
		return NewContentScanner(sens), nil
	case ModuleInjectionValidator:
		return NewInjectionValidator(sens), nil
	case ModuleExfiltrationDetector:
		return NewExfiltrationDetector(sens), nil
	case ModuleCodeExecutionDetector:
		return NewCodeExecutionDetector(sens), nil
	case ModuleSerializationDetector:
		return NewSerializationDetector(sens), nil
	default:
		return nil, fmt.Errorf("unknown module %q", name)
	}
}

// Close releases modules that hold connections.
func Close(dets []engine.Detector) error {
	var errs []error
	for _, d := range dets {
		if c, ok := d.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
