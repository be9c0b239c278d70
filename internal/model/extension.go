// Package model holds the data types shared across the scan core:
// extension references, verdicts, and scan statistics.
package model

import (
	"strings"
	"time"
)

// ExtensionRef identifies one installed extension at one version. It is
// produced by Discovery and is read-only for the rest of the pipeline.
type ExtensionRef struct {
	Publisher   string
	Name        string
	Version     string
	InstallPath string
	InstalledAt *time.Time
}

// ID returns the identity key "{publisher}.{name}".
func (r ExtensionRef) ID() string {
	return r.Publisher + "." + r.Name
}

// EqualID reports whether two refs share the same identity, comparing
// case-insensitively so the comparison is stable across filesystems that
// fold case.
func (r ExtensionRef) EqualID(other ExtensionRef) bool {
	return strings.EqualFold(r.ID(), other.ID())
}

// RiskLevel is an ordered severity classification. Higher values are more
// severe; the ordering backs the min_risk_level filter and exit-code
// threshold comparisons.
type RiskLevel int

const (
	RiskUnknown RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskCritical:
		return "critical"
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	case RiskLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParseRiskLevel parses the wire/config vocabulary into a RiskLevel.
// Unrecognized values map to RiskUnknown, never to an error, since risk
// vocabulary is advisory rather than load-bearing for correctness.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return RiskCritical
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	case "low":
		return RiskLow
	default:
		return RiskUnknown
	}
}

// SourceStatus reports how an ExtensionVerdict was obtained.
type SourceStatus string

const (
	SourceSuccess  SourceStatus = "success"
	SourceNotFound SourceStatus = "not_found"
	SourceError    SourceStatus = "error"
)

// VulnCounts tallies vulnerabilities by severity bucket.
type VulnCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Moderate int `json:"moderate"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Dependency describes one resolved dependency of an analyzed extension.
type Dependency struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	RiskLevel RiskLevel `json:"riskLevel"`
}

// RiskFactor describes one contributing factor to an extension's risk score.
type RiskFactor struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Severity    RiskLevel `json:"severity"`
}

// ExtensionVerdict is the parsed, application-level security result for one
// extension at one version. SecurityScore is a pointer since the
// remote analyzer may not produce one (e.g. for a not_found/error verdict).
type ExtensionVerdict struct {
	ExtensionID       string
	Version           string
	AnalysisID        string
	SecurityScore     *int
	RiskLevel         RiskLevel
	VulnCounts        VulnCounts
	PublisherVerified bool
	Dependencies      []Dependency
	RiskFactors       []RiskFactor
	UpdatedAt         time.Time
	AnalyzedAt        time.Time
	SourceStatus      SourceStatus
	ErrorMessage      string
	RawPayload        []byte // present only when the scan ran in detailed mode
}

// HasFindings reports whether the verdict represents a completed analysis
// with at least one vulnerability recorded.
func (v ExtensionVerdict) HasFindings() bool {
	return v.SourceStatus == SourceSuccess && v.VulnCounts.Total > 0
}
