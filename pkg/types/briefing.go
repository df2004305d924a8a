package types

import (
	"strings"
	"time"
)

// RiskLevel is the discrete classification of a risk score.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "NORMAL"
	RiskElevated RiskLevel = "ELEVATED"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels from 0 (NORMAL) to 3 (CRITICAL).
// Unknown levels rank -1.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskNormal:
		return 0
	case RiskElevated:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// ParseRiskLevel accepts a level name in any case.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	for _, l := range []RiskLevel{RiskNormal, RiskElevated, RiskHigh, RiskCritical} {
		if strings.EqualFold(string(l), s) {
			return l, true
		}
	}
	return "", false
}

// SupplyStatus is the supply-chain alert attached to a briefing.
type SupplyStatus string

const (
	SupplyStatusStable   SupplyStatus = "STABLE"
	SupplyStatusLow      SupplyStatus = "LOW"
	SupplyStatusCritical SupplyStatus = "CRITICAL"
)

// Briefing is the decision-support record for one hospital on one date.
//
// A Briefing is immutable once the forecast cache has published it: the same
// pointer is shared by the cache, the ledger and every reader. Callers must not
// modify it.
type Briefing struct {
	ID                string       `json:"id"`
	HospitalID        string       `json:"hospital_id"`
	Date              string       `json:"date"`
	RiskScore         float64      `json:"risk_score"`
	RiskLevel         RiskLevel    `json:"risk_level"`
	ERSurgePct        float64      `json:"er_surge_pct"`
	ICUSurgePct       float64      `json:"icu_surge_pct"`
	AdditionalICUBeds int          `json:"additional_icu_beds"`
	AdditionalStaff   int          `json:"additional_staff"`
	SupplyStatus      SupplyStatus `json:"supply_status"`
	Recommendations   []string     `json:"recommendations"`
	Reasons           []string     `json:"reasons"`
	Summary           string       `json:"summary"`
	ModelVersion      string       `json:"model_version,omitempty"`
	Fallback          bool         `json:"is_fallback"`
	ComputedAt        time.Time    `json:"computed_at"`
}
