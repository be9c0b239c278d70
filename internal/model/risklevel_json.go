package model

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders a RiskLevel as its string form so cache payloads and
// resolver-facing JSON stay human-readable and forward-compatible.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses a RiskLevel from its string form. Unknown strings
// decode to RiskUnknown rather than erroring, since risk vocabulary is
// advisory and an unrecognized value should never abort a scan.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("risk level must be a string: %w", err)
	}
	*r = ParseRiskLevel(s)
	return nil
}
