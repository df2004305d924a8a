package advisor

import (
	"fmt"
	"math"

	"github.com/surgecast/surgecast/pkg/types"
)

// Reason thresholds. Reasons describe the inputs only, never model internals.
const (
	icuOccupancyHigh     = 0.80
	icuOccupancyCritical = 0.90
	tempHeatwave         = 38.0
	tempExtreme          = 42.0
	rainHeavy            = 30.0
	rainExtreme          = 50.0
	minStaffOnDuty       = 8
	seasonalHigh         = 0.7
)

// Reasons lists the input conditions that push the forecast up, in a fixed
// order: ICU load, heat, rain, staffing, calendar, supplies, season.
// The result is never nil.
func Reasons(v types.FeatureVector, oxygen, medicine types.SupplyLevel) []string {
	reasons := []string{}

	switch occ := v.ICUOccupancyPct; {
	case occ > icuOccupancyCritical:
		reasons = append(reasons, fmt.Sprintf("ICU occupancy critical at %.0f%% (threshold %.0f%%)", pct(occ), pct(icuOccupancyCritical)))
	case occ > icuOccupancyHigh:
		reasons = append(reasons, fmt.Sprintf("ICU occupancy at %.0f%% (above %.0f%% threshold)", pct(occ), pct(icuOccupancyHigh)))
	}

	switch t := v.TempMaxC; {
	case t > tempExtreme:
		reasons = append(reasons, fmt.Sprintf("Extreme heat: %.1f°C increases cardiac and respiratory load", t))
	case t > tempHeatwave:
		reasons = append(reasons, fmt.Sprintf("Heatwave: %.1f°C (normal range 25-35°C)", t))
	}

	switch r := v.RainMM; {
	case r > rainExtreme:
		reasons = append(reasons, fmt.Sprintf("Extreme rainfall: %.1fmm, high accident risk", r))
	case r > rainHeavy:
		reasons = append(reasons, fmt.Sprintf("Heavy rain: %.1fmm, more road accidents expected", r))
	}

	if v.StaffOnDuty < minStaffOnDuty {
		reasons = append(reasons, fmt.Sprintf("Staff below minimum: %d on duty (minimum %d)", v.StaffOnDuty, minStaffOnDuty))
	}
	if v.IsWeekend {
		reasons = append(reasons, "Weekend: accident rates historically higher")
	}
	if v.IsFestival {
		reasons = append(reasons, "Festival or holiday: mass gatherings increase ER load")
	}
	if oxygen.Short() {
		reasons = append(reasons, fmt.Sprintf("Oxygen supply %s", oxygen))
	}
	if medicine.Short() {
		reasons = append(reasons, fmt.Sprintf("Medicine inventory %s", medicine))
	}
	if v.SeasonalIllnessWeight > seasonalHigh {
		reasons = append(reasons, fmt.Sprintf("High seasonal illness period (weight %.1f)", v.SeasonalIllnessWeight))
	}
	return reasons
}

// Summary renders a one-line description, e.g.
// "HIGH risk (72%) - 2 contributing factors identified".
func Summary(level types.RiskLevel, score float64, reasons []string) string {
	return fmt.Sprintf("%s risk (%.0f%%) - %d contributing %s identified",
		level, pct(score), len(reasons), plural(len(reasons), "factor", "factors"))
}

func pct(f float64) float64 {
	return math.Round(f * 100)
}
