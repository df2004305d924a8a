package types

import "time"

// SupplyLevel is the reported stock level of a consumable (oxygen, medicine).
type SupplyLevel string

const (
	SupplyNormal   SupplyLevel = "NORMAL"
	SupplyLow      SupplyLevel = "LOW"
	SupplyCritical SupplyLevel = "CRITICAL"
)

// Valid reports whether l is one of the known supply levels.
func (l SupplyLevel) Valid() bool {
	switch l {
	case SupplyNormal, SupplyLow, SupplyCritical:
		return true
	}
	return false
}

// Short reports whether the supply is LOW or CRITICAL.
func (l SupplyLevel) Short() bool {
	return l == SupplyLow || l == SupplyCritical
}

// HospitalState is the mutable operating record of one hospital.
// It is owned by the hospital's manager and replaced in place on every update.
type HospitalState struct {
	HospitalID     string      `json:"hospital_id"`
	Name           string      `json:"name,omitempty"`
	Location       string      `json:"location,omitempty"`
	ICUTotal       int         `json:"icu_total"`
	ICUOccupied    int         `json:"icu_occupied"`
	DailyPatients  int         `json:"daily_patients"`
	StaffOnDuty    int         `json:"staff_on_duty"`
	OxygenStatus   SupplyLevel `json:"oxygen_status"`
	MedicineStatus SupplyLevel `json:"medicine_status"`
	UpdatedAt      time.Time   `json:"updated_at"`
	UpdatedBy      string      `json:"updated_by,omitempty"`
}
