package model

import (
	"context"
	"math"

	"github.com/surgecast/surgecast/pkg/types"
)

// HeuristicVersion is reported as ModelVersion on heuristic output.
const HeuristicVersion = "heuristic-v1"

// Heuristic is a conservative rule-based Predictor:
//
//	risk = min(1, 0.6 × icu_occupancy + 0.2 if any supply is short + 0.1 on weekends)
//	er_surge  = 0.15 if risk > 0.5 else 0.10
//	icu_surge = 0.10 if risk > 0.5 else 0.05
type Heuristic struct{}

// Predict implements Predictor. It never fails.
func (Heuristic) Predict(_ context.Context, v types.FeatureVector) (types.ModelOutput, error) {
	risk := v.ICUOccupancyPct * 0.6
	if v.OxygenLow || v.MedicineLow {
		risk += 0.2
	}
	if v.IsWeekend {
		risk += 0.1
	}
	risk = math.Round(math.Min(risk, 1)*1000) / 1000

	out := types.ModelOutput{
		RiskScore:      risk,
		ERIncreasePct:  0.10,
		ICUIncreasePct: 0.05,
		ModelVersion:   HeuristicVersion,
		Fallback:       true,
	}
	if risk > 0.5 {
		out.ERIncreasePct = 0.15
		out.ICUIncreasePct = 0.10
	}
	return out, nil
}
