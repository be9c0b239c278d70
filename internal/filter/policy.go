package filter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/safeio"
	"github.com/vscan/vscan/internal/vscanerr"
)

// Policy is the optional on-disk risk-policy file consulted for the
// min_risk_level default and the exit-code threshold. It is flat with
// yaml tags.
//
// FailOnVulnTotal is parsed for forward compatibility with operator
// tooling that inspects risk-policy.yaml directly, but is not consulted
// by the engine's exit-code computation: the exit-code rule requires
// vuln_counts.total = 0 unconditionally for a clean exit, and that is not
// a knob this policy file is permitted to loosen.
type Policy struct {
	MinRiskLevel    string `yaml:"min_risk_level"`
	ExitThreshold   string `yaml:"exit_threshold"`
	FailOnVulnTotal bool   `yaml:"fail_on_vuln_total"`
}

// LoadPolicy reads and parses a risk-policy.yaml file from path. A missing
// file is not an error: callers should fall back to ScanConfig defaults.
func LoadPolicy(path string) (Policy, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Policy{}, false, nil
		}
		return Policy{}, false, vscanerr.New(vscanerr.InvalidInput, fmt.Errorf("reading risk policy: %w", err))
	}

	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, false, vscanerr.New(vscanerr.InvalidInput, fmt.Errorf("parsing risk policy %s: %w", safeio.Sanitize(path, safeio.ContextError), err))
	}
	return p, true, nil
}

// MinRiskLevelParsed parses the policy's configured threshold, defaulting to
// RiskUnknown (matches everything) when unset or unrecognized.
func (p Policy) MinRiskLevelParsed() model.RiskLevel {
	return model.ParseRiskLevel(p.MinRiskLevel)
}

// ExitThresholdParsed parses the policy's exit-code risk threshold,
// defaulting to RiskHigh "critical, high" language.
func (p Policy) ExitThresholdParsed() model.RiskLevel {
	if p.ExitThreshold == "" {
		return model.RiskHigh
	}
	return model.ParseRiskLevel(p.ExitThreshold)
}
