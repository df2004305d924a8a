package types

// FeatureNames lists the model input fields in contract order.
// Reordering this list is a breaking change for every trained model.
var FeatureNames = [11]string{
	"icu_occupancy_pct",
	"daily_patients",
	"staff_on_duty",
	"oxygen_low",
	"medicine_low",
	"temp_max",
	"rain_mm",
	"weather_severity",
	"is_weekend",
	"is_festival",
	"seasonal_illness_weight",
}

// FeatureVector is the fixed-shape input to the forecast model.
type FeatureVector struct {
	ICUOccupancyPct       float64 `json:"icu_occupancy_pct"`
	DailyPatients         int     `json:"daily_patients"`
	StaffOnDuty           int     `json:"staff_on_duty"`
	OxygenLow             bool    `json:"oxygen_low"`
	MedicineLow           bool    `json:"medicine_low"`
	TempMaxC              float64 `json:"temp_max"`
	RainMM                float64 `json:"rain_mm"`
	WeatherSeverity       float64 `json:"weather_severity"`
	IsWeekend             bool    `json:"is_weekend"`
	IsFestival            bool    `json:"is_festival"`
	SeasonalIllnessWeight float64 `json:"seasonal_illness_weight"`
}

// Values returns the vector in FeatureNames order, flags encoded as 0/1.
func (f FeatureVector) Values() [11]float64 {
	return [11]float64{
		f.ICUOccupancyPct,
		float64(f.DailyPatients),
		float64(f.StaffOnDuty),
		flag(f.OxygenLow),
		flag(f.MedicineLow),
		f.TempMaxC,
		f.RainMM,
		f.WeatherSeverity,
		flag(f.IsWeekend),
		flag(f.IsFestival),
		f.SeasonalIllnessWeight,
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ModelOutput holds the three numbers returned by the forecast model.
// Each value is in [0, 1].
type ModelOutput struct {
	RiskScore      float64 `json:"risk_score"`
	ERIncreasePct  float64 `json:"expected_er_increase_pct"`
	ICUIncreasePct float64 `json:"expected_icu_increase_pct"`

	// ModelVersion identifies the model that produced the output.
	ModelVersion string `json:"model_version,omitempty"`

	// Fallback is true when the output came from the rule-based heuristic
	// rather than the trained model.
	Fallback bool `json:"is_fallback,omitempty"`
}
