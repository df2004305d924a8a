package types

import (
	"fmt"
	"time"
)

// DateLayout is the civil-date format used for briefing and signal dates.
const DateLayout = "2006-01-02"

// DateOf returns the civil date of t in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// EnvironmentalSignal is the external context for one day.
// WeatherSeverity and SeasonalIllnessWeight are in [0, 1].
type EnvironmentalSignal struct {
	Date                  string  `json:"date"`
	TempMaxC              float64 `json:"temp_max_c"`
	RainMM                float64 `json:"rain_mm"`
	WeatherSeverity       float64 `json:"weather_severity"`
	IsWeekend             bool    `json:"is_weekend"`
	IsFestival            bool    `json:"is_festival"`
	SeasonalIllnessWeight float64 `json:"seasonal_illness_weight"`
}
