package signals

import (
	"context"
	"math"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Source is the read side used by the feature aggregator.
type Source interface {
	// Get returns the signal for date, or fault.ErrMissingSignal.
	Get(ctx context.Context, date string) (*types.EnvironmentalSignal, error)
}

// Store is a Source that also accepts writes from the feed endpoint.
type Store interface {
	Source
	Put(ctx context.Context, s *types.EnvironmentalSignal) error
}

// Validate checks the ranges of s. Nothing is clamped.
func Validate(s *types.EnvironmentalSignal) error {
	if s == nil {
		return fault.New(fault.KindInvalidArgument, "signal is nil")
	}
	if _, err := types.ParseDate(s.Date); err != nil {
		return fault.Wrap(fault.KindInvalidArgument, err, "signal date")
	}
	if math.IsNaN(s.TempMaxC) || math.IsInf(s.TempMaxC, 0) {
		return fault.New(fault.KindOutOfRange, "temp_max_c must be finite")
	}
	if math.IsNaN(s.RainMM) || s.RainMM < 0 {
		return fault.OutOfRange("rain_mm", s.RainMM, 0, math.Inf(1))
	}
	if !unit(s.WeatherSeverity) {
		return fault.OutOfRange("weather_severity", s.WeatherSeverity, 0, 1)
	}
	if !unit(s.SeasonalIllnessWeight) {
		return fault.OutOfRange("seasonal_illness_weight", s.SeasonalIllnessWeight, 0, 1)
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
