package features

import (
	"context"
	"fmt"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/hospital"
	"github.com/surgecast/surgecast/server/internal/signals"
)

// Inputs is everything read for one computation. Downstream stages need the
// raw state (capacity, supply levels) as well as the vector.
type Inputs struct {
	State  *types.HospitalState
	Signal *types.EnvironmentalSignal
	Vector types.FeatureVector
}

// Aggregator builds feature vectors.
type Aggregator struct {
	hospitals hospital.Repository
	signals   signals.Source
}

// New returns an Aggregator reading from hospitals and sigs.
func New(hospitals hospital.Repository, sigs signals.Source) *Aggregator {
	return &Aggregator{hospitals: hospitals, signals: sigs}
}

// Build returns the feature vector for hospitalID on date.
func (a *Aggregator) Build(ctx context.Context, hospitalID, date string) (types.FeatureVector, error) {
	in, err := a.Assemble(ctx, hospitalID, date)
	if err != nil {
		return types.FeatureVector{}, err
	}
	return in.Vector, nil
}

// Assemble reads and validates the state and signal, then builds the vector.
// Errors: fault.ErrMissingState, fault.ErrMissingSignal, fault.KindOutOfRange.
func (a *Aggregator) Assemble(ctx context.Context, hospitalID, date string) (Inputs, error) {
	state, err := a.hospitals.Get(ctx, hospitalID)
	if err != nil {
		return Inputs{}, err
	}
	if err := hospital.Validate(state); err != nil {
		return Inputs{}, fmt.Errorf("hospital %q: %w", hospitalID, err)
	}

	sig, err := a.signals.Get(ctx, date)
	if err != nil {
		return Inputs{}, err
	}
	if err := signals.Validate(sig); err != nil {
		return Inputs{}, fmt.Errorf("signal %s: %w", date, err)
	}

	return Inputs{
		State:  state,
		Signal: sig,
		Vector: Vector(state, sig),
	}, nil
}

// Vector maps a validated state and signal onto the model input.
func Vector(s *types.HospitalState, sig *types.EnvironmentalSignal) types.FeatureVector {
	return types.FeatureVector{
		ICUOccupancyPct:       float64(s.ICUOccupied) / float64(s.ICUTotal),
		DailyPatients:         s.DailyPatients,
		StaffOnDuty:           s.StaffOnDuty,
		OxygenLow:             s.OxygenStatus.Short(),
		MedicineLow:           s.MedicineStatus.Short(),
		TempMaxC:              sig.TempMaxC,
		RainMM:                sig.RainMM,
		WeatherSeverity:       sig.WeatherSeverity,
		IsWeekend:             sig.IsWeekend,
		IsFestival:            sig.IsFestival,
		SeasonalIllnessWeight: sig.SeasonalIllnessWeight,
	}
}
