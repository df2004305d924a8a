package signals

import (
	"math"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
)

// Observation is a raw weather reading for one day, as delivered by a weather
// feed that does not compute severity or calendar flags itself.
type Observation struct {
	Date     string  `json:"date"`
	TempMaxC float64 `json:"temp_max_c"`
	RainMM   float64 `json:"rain_mm"`
}

const (
	heatBaselineC  = 35.0
	heatPerDegree  = 0.05
	rainBaselineMM = 5.0
	rainPerMM      = 0.02
	seasonWinter   = 0.8
	seasonMonsoon  = 0.7
	seasonBaseline = 0.3
)

// Deriver turns observations into signals using the configured festival
// calendar.
type Deriver struct {
	festivals map[string]struct{}
}

// NewDeriver returns a Deriver. festivals are YYYY-MM-DD dates.
func NewDeriver(festivals []string) *Deriver {
	set := make(map[string]struct{}, len(festivals))
	for _, d := range festivals {
		set[d] = struct{}{}
	}
	return &Deriver{festivals: set}
}

// Derive computes the full signal for o. The result is validated.
func (d *Deriver) Derive(o Observation) (*types.EnvironmentalSignal, error) {
	day, err := types.ParseDate(o.Date)
	if err != nil {
		return nil, err
	}
	s := &types.EnvironmentalSignal{
		Date:                  o.Date,
		TempMaxC:              o.TempMaxC,
		RainMM:                o.RainMM,
		WeatherSeverity:       Severity(o.TempMaxC, o.RainMM),
		IsWeekend:             day.Weekday() == time.Saturday || day.Weekday() == time.Sunday,
		SeasonalIllnessWeight: SeasonalWeight(day.Month()),
	}
	_, s.IsFestival = d.festivals[o.Date]
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Severity scores weather stress in [0, 1]: heat above 35°C and rain above
// 5mm each add linearly, capped at 1.
func Severity(tempMaxC, rainMM float64) float64 {
	score := 0.0
	if tempMaxC > heatBaselineC {
		score += (tempMaxC - heatBaselineC) * heatPerDegree
	}
	if rainMM > rainBaselineMM {
		score += (rainMM - rainBaselineMM) * rainPerMM
	}
	return math.Min(score, 1)
}

// SeasonalWeight is the illness weight for month: winter flu season
// (Dec-Feb) and monsoon (Jul-Sep) run high.
func SeasonalWeight(month time.Month) float64 {
	switch month {
	case time.December, time.January, time.February:
		return seasonWinter
	case time.July, time.August, time.September:
		return seasonMonsoon
	default:
		return seasonBaseline
	}
}
