package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vscan/vscan/internal/model"
)

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// wireVerdict is the on-disk representation of an ExtensionVerdict. It
// excludes RawPayload unless present, keeping the common (non-detailed)
// case compact.
type wireVerdict struct {
	ExtensionID       string               `json:"extensionId"`
	Version           string               `json:"version"`
	AnalysisID        string               `json:"analysisId"`
	SecurityScore     *int                 `json:"securityScore,omitempty"`
	RiskLevel         model.RiskLevel      `json:"riskLevel"`
	VulnCounts        model.VulnCounts     `json:"vulnCounts"`
	PublisherVerified bool                 `json:"publisherVerified"`
	Dependencies      []model.Dependency   `json:"dependencies,omitempty"`
	RiskFactors       []model.RiskFactor   `json:"riskFactors,omitempty"`
	UpdatedAtUnix     int64                `json:"updatedAt"`
	AnalyzedAtUnix    int64                `json:"analyzedAt"`
	SourceStatus      model.SourceStatus   `json:"sourceStatus"`
	ErrorMessage      string               `json:"errorMessage,omitempty"`
	RawPayload        []byte               `json:"rawPayload,omitempty"`
}

func marshalVerdict(v model.ExtensionVerdict) ([]byte, error) {
	w := wireVerdict{
		ExtensionID:       v.ExtensionID,
		Version:           v.Version,
		AnalysisID:        v.AnalysisID,
		SecurityScore:     v.SecurityScore,
		RiskLevel:         v.RiskLevel,
		VulnCounts:        v.VulnCounts,
		PublisherVerified: v.PublisherVerified,
		Dependencies:      v.Dependencies,
		RiskFactors:       v.RiskFactors,
		UpdatedAtUnix:     v.UpdatedAt.Unix(),
		AnalyzedAtUnix:    v.AnalyzedAt.Unix(),
		SourceStatus:      v.SourceStatus,
		ErrorMessage:      v.ErrorMessage,
		RawPayload:        v.RawPayload,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshaling verdict payload: %w", err)
	}
	return data, nil
}

func unmarshalVerdict(data []byte) (model.ExtensionVerdict, error) {
	var w wireVerdict
	if err := json.Unmarshal(data, &w); err != nil {
		return model.ExtensionVerdict{}, fmt.Errorf("unmarshaling verdict payload: %w", err)
	}
	return model.ExtensionVerdict{
		ExtensionID:       w.ExtensionID,
		Version:           w.Version,
		AnalysisID:        w.AnalysisID,
		SecurityScore:     w.SecurityScore,
		RiskLevel:         w.RiskLevel,
		VulnCounts:        w.VulnCounts,
		PublisherVerified: w.PublisherVerified,
		Dependencies:      w.Dependencies,
		RiskFactors:       w.RiskFactors,
		UpdatedAt:         unixTime(w.UpdatedAtUnix),
		AnalyzedAt:        unixTime(w.AnalyzedAtUnix),
		SourceStatus:      w.SourceStatus,
		ErrorMessage:      w.ErrorMessage,
		RawPayload:        w.RawPayload,
	}, nil
}
