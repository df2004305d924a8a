package model

import (
	"context"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Predictor produces a forecast for one feature vector.
// Implementations must be deterministic for a given vector.
type Predictor interface {
	Predict(ctx context.Context, v types.FeatureVector) (types.ModelOutput, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, v types.FeatureVector) (types.ModelOutput, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, v types.FeatureVector) (types.ModelOutput, error) {
	return f(ctx, v)
}

// CheckOutput verifies every output value lies in [0, 1].
func CheckOutput(out types.ModelOutput) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"risk_score", out.RiskScore},
		{"expected_er_increase_pct", out.ERIncreasePct},
		{"expected_icu_increase_pct", out.ICUIncreasePct},
	}
	for _, f := range fields {
		if !(f.v >= 0 && f.v <= 1) { // also catches NaN
			return fault.OutOfRange(f.name, f.v, 0, 1)
		}
	}
	return nil
}
