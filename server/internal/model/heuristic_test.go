package model

import (
	"context"
	"testing"

	"github.com/surgecast/surgecast/pkg/types"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		v        types.FeatureVector
		wantRisk float64
		wantER   float64
		wantICU  float64
	}{
		{"quiet", types.FeatureVector{ICUOccupancyPct: 0.5}, 0.3, 0.10, 0.05},
		{"weekend, high occupancy", types.FeatureVector{ICUOccupancyPct: 0.82, IsWeekend: true}, 0.592, 0.15, 0.10},
		{"supply shortage", types.FeatureVector{ICUOccupancyPct: 0.5, MedicineLow: true}, 0.5, 0.10, 0.05},
		{"capped", types.FeatureVector{ICUOccupancyPct: 1, OxygenLow: true, IsWeekend: true}, 0.9, 0.15, 0.10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Heuristic{}.Predict(context.Background(), tc.v)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if out.RiskScore != tc.wantRisk || out.ERIncreasePct != tc.wantER || out.ICUIncreasePct != tc.wantICU {
				t.Errorf("got %+v, want risk=%v er=%v icu=%v", out, tc.wantRisk, tc.wantER, tc.wantICU)
			}
			if !out.Fallback || out.ModelVersion != HeuristicVersion {
				t.Errorf("fallback=%v version=%q", out.Fallback, out.ModelVersion)
			}
			if err := CheckOutput(out); err != nil {
				t.Errorf("CheckOutput: %v", err)
			}
		})
	}
}
