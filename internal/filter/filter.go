// Package filter applies the pre-scan and post-scan filters:
// include/exclude/publisher before dispatch (to avoid unnecessary API
// calls), min_risk_level after a verdict is known.
package filter

import (
	"strings"

	"github.com/vscan/vscan/internal/model"
)

// Set holds the filter criteria carried by ScanConfig. A zero Set matches
// everything.
type Set struct {
	IncludeIDs   []string
	ExcludeIDs   []string
	Publisher    string
	MinRiskLevel model.RiskLevel
}

// PreScan reports whether ref should be dispatched at all, combining
// include/exclude/publisher with AND semantics. include_ids, when
// non-empty, acts as an allow-list; everything else stays exact-match
// exclusionary.
func (s Set) PreScan(ref model.ExtensionRef) bool {
	id := strings.ToLower(ref.ID())

	if len(s.IncludeIDs) > 0 && !containsFold(s.IncludeIDs, id) {
		return false
	}
	if containsFold(s.ExcludeIDs, id) {
		return false
	}
	if s.Publisher != "" && !strings.EqualFold(s.Publisher, ref.Publisher) {
		return false
	}
	return true
}

// PostScan reports whether a completed verdict survives the
// min_risk_level threshold. Verdicts that did not succeed pass
// through untouched since risk_level is only meaningful for successes.
func (s Set) PostScan(v model.ExtensionVerdict) bool {
	if v.SourceStatus != model.SourceSuccess {
		return true
	}
	return v.RiskLevel >= s.MinRiskLevel
}

func containsFold(list []string, id string) bool {
	for _, item := range list {
		if strings.EqualFold(item, id) {
			return true
		}
	}
	return false
}
