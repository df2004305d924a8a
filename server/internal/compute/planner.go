package compute

import (
	"math"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

const (
	// DefaultPatientsPerStaff is the clinical staffing ratio: one staff
	// member per this many expected patients.
	DefaultPatientsPerStaff = 10.0

	// DefaultSupplySurgeThreshold is the ER surge above which a LOW supply
	// is escalated into a LOW supply status.
	DefaultSupplySurgeThreshold = 0.20

	// ceilTolerance absorbs float noise such as 90*1.2 = 108.00000000000001.
	ceilTolerance = 1e-9
)

// PlanInput is the current capacity plus the model's surge forecast.
type PlanInput struct {
	ICUTotal      int
	ICUOccupied   int
	StaffOnDuty   int
	DailyPatients int
	ERSurgePct    float64
	ICUSurgePct   float64
}

// Plan is the resource delta recommended for the forecast day.
// Both fields are never negative.
type Plan struct {
	AdditionalICUBeds int
	AdditionalStaff   int
}

// Planner converts surge forecasts into resource deltas.
type Planner struct {
	patientsPerStaff     float64
	supplySurgeThreshold float64
}

// NewPlanner returns a Planner. Non-positive arguments select the defaults.
func NewPlanner(patientsPerStaff, supplySurgeThreshold float64) *Planner {
	if patientsPerStaff <= 0 {
		patientsPerStaff = DefaultPatientsPerStaff
	}
	if supplySurgeThreshold <= 0 {
		supplySurgeThreshold = DefaultSupplySurgeThreshold
	}
	return &Planner{
		patientsPerStaff:     patientsPerStaff,
		supplySurgeThreshold: supplySurgeThreshold,
	}
}

// Plan computes the additional ICU beds and staff needed.
//
//	beds  = max(0, ceil(occupied × (1 + icu_surge) − icu_total))
//	staff = max(0, ceil(daily_patients × (1 + er_surge) / patients_per_staff − staff_on_duty))
//
// A predicted decrease yields zero, never a negative delta.
func (p *Planner) Plan(in PlanInput) (Plan, error) {
	if err := validatePlanInput(in); err != nil {
		return Plan{}, err
	}

	projectedICU := float64(in.ICUOccupied) * (1 + in.ICUSurgePct)
	beds := tolerantCeil(projectedICU - float64(in.ICUTotal))

	projectedLoad := float64(in.DailyPatients) * (1 + in.ERSurgePct)
	staff := tolerantCeil(projectedLoad/p.patientsPerStaff - float64(in.StaffOnDuty))

	return Plan{
		AdditionalICUBeds: nonNegative(beds),
		AdditionalStaff:   nonNegative(staff),
	}, nil
}

// SupplyStatus derives the briefing's supply alert:
// CRITICAL when any supply is critical, LOW when a supply is short and the
// ER surge exceeds the configured threshold, STABLE otherwise.
func (p *Planner) SupplyStatus(erSurgePct float64, oxygen, medicine types.SupplyLevel) types.SupplyStatus {
	if oxygen == types.SupplyCritical || medicine == types.SupplyCritical {
		return types.SupplyStatusCritical
	}
	if erSurgePct > p.supplySurgeThreshold && (oxygen.Short() || medicine.Short()) {
		return types.SupplyStatusLow
	}
	return types.SupplyStatusStable
}

func validatePlanInput(in PlanInput) error {
	ints := []struct {
		name string
		v    int
	}{
		{"icu_total", in.ICUTotal},
		{"icu_occupied", in.ICUOccupied},
		{"staff_on_duty", in.StaffOnDuty},
		{"daily_patients", in.DailyPatients},
	}
	for _, f := range ints {
		if f.v < 0 {
			return fault.New(fault.KindInvalidCapacity, "%s must not be negative, got %d", f.name, f.v)
		}
	}
	floats := []struct {
		name string
		v    float64
	}{
		{"er_surge_pct", in.ERSurgePct},
		{"icu_surge_pct", in.ICUSurgePct},
	}
	for _, f := range floats {
		if math.IsNaN(f.v) || f.v < 0 {
			return fault.New(fault.KindInvalidCapacity, "%s must not be negative, got %g", f.name, f.v)
		}
	}
	return nil
}

func tolerantCeil(v float64) float64 {
	return math.Ceil(v - ceilTolerance)
}

func nonNegative(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}
