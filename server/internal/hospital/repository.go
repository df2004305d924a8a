package hospital

import (
	"context"
	"math"
	"strings"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Repository is the hospital state store.
type Repository interface {
	// Get returns the current state, or fault.ErrMissingState.
	Get(ctx context.Context, hospitalID string) (*types.HospitalState, error)

	// Put validates and upserts s, stamping UpdatedAt. The stored copy is
	// returned.
	Put(ctx context.Context, s *types.HospitalState) (*types.HospitalState, error)

	// List returns every known hospital ID in ascending order.
	List(ctx context.Context) ([]string, error)
}

// Validate checks the counts and supply levels of s.
// Violations are reported as fault.KindOutOfRange; nothing is clamped.
func Validate(s *types.HospitalState) error {
	if s == nil {
		return fault.New(fault.KindInvalidArgument, "hospital state is nil")
	}
	if strings.TrimSpace(s.HospitalID) == "" {
		return fault.New(fault.KindInvalidArgument, "hospital_id is required")
	}
	if s.ICUTotal <= 0 {
		return fault.OutOfRange("icu_total", float64(s.ICUTotal), 1, math.MaxInt32)
	}
	if s.ICUOccupied < 0 || s.ICUOccupied > s.ICUTotal {
		return fault.OutOfRange("icu_occupied", float64(s.ICUOccupied), 0, float64(s.ICUTotal))
	}
	if s.DailyPatients < 0 {
		return fault.OutOfRange("daily_patients", float64(s.DailyPatients), 0, math.MaxInt32)
	}
	if s.StaffOnDuty < 0 {
		return fault.OutOfRange("staff_on_duty", float64(s.StaffOnDuty), 0, math.MaxInt32)
	}
	if !s.OxygenStatus.Valid() {
		return fault.New(fault.KindOutOfRange, "oxygen_status %q is not one of NORMAL, LOW, CRITICAL", s.OxygenStatus)
	}
	if !s.MedicineStatus.Valid() {
		return fault.New(fault.KindOutOfRange, "medicine_status %q is not one of NORMAL, LOW, CRITICAL", s.MedicineStatus)
	}
	return nil
}
