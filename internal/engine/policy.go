package engine

import (
	"fmt"
	"strings"
)

// Sensitivity tunes how eagerly a detection module reports. Higher values
// report more; the zero value is medium.
type Sensitivity int

const (
	SensitivityPermissive Sensitivity = iota - 1
	SensitivityMedium
	SensitivityStrict
	SensitivityParanoid
)

func (s Sensitivity) String() string {
	switch s {
	case SensitivityPermissive:
		return "permissive"
	case SensitivityMedium:
		return "medium"
	case SensitivityStrict:
		return "strict"
	case SensitivityParanoid:
		return "paranoid"
	default:
		return "medium"
	}
}

// ParseSensitivity converts a sensitivity name. Empty means medium.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "medium":
		return SensitivityMedium, nil
	case "permissive":
		return SensitivityPermissive, nil
	case "strict":
		return SensitivityStrict, nil
	case "paranoid":
		return SensitivityParanoid, nil
	default:
		return SensitivityMedium, fmt.Errorf("ParseSensitivity: unknown sensitivity %q", s)
	}
}

func (s Sensitivity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sensitivity) UnmarshalText(b []byte) error {
	v, err := ParseSensitivity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Adjust applies the sensitivity to a finding severity. ok is false when
// the finding should be suppressed: permissive drops LOW findings, paranoid
// raises them to MEDIUM.
func (s Sensitivity) Adjust(sev Severity) (adjusted Severity, ok bool) {
	switch {
	case s == SensitivityPermissive && sev <= SeverityLow:
		return sev, false
	case s == SensitivityParanoid && sev == SeverityLow:
		return SeverityMedium, true
	default:
		return sev, true
	}
}

// ModuleConfig controls one detection module.
// A nil Enabled means the module is on.
type ModuleConfig struct {
	Enabled     *bool       `yaml:"enabled" json:"enabled"`
	Sensitivity Sensitivity `yaml:"sensitivity" json:"sensitivity"`
}

// IsEnabled returns whether the module is enabled.
func (mc ModuleConfig) IsEnabled() bool {
	if mc.Enabled == nil {
		return true
	}
	return *mc.Enabled
}

// ModulePolicy maps module names to their configuration.
type ModulePolicy map[string]ModuleConfig

// Get returns the module's config or the zero value (enabled, medium).
func (mp ModulePolicy) Get(name string) ModuleConfig {
	return mp[name]
}
