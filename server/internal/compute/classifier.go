package compute

import (
	"fmt"
	"math"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Default thresholds. Each is the exclusive upper bound of the band below it.
const (
	DefaultElevatedThreshold = 0.40
	DefaultHighThreshold     = 0.65
	DefaultCriticalThreshold = 0.85
)

// Thresholds is the ordered cut-point table. A score belongs to the highest
// band whose threshold it reaches:
//
//	[0, Elevated)        → NORMAL
//	[Elevated, High)     → ELEVATED
//	[High, Critical)     → HIGH
//	[Critical, 1]        → CRITICAL
type Thresholds struct {
	Elevated float64 `yaml:"elevated"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// DefaultThresholds returns the stock cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Elevated: DefaultElevatedThreshold,
		High:     DefaultHighThreshold,
		Critical: DefaultCriticalThreshold,
	}
}

// Validate checks 0 < Elevated < High < Critical <= 1.
func (t Thresholds) Validate() error {
	if !(t.Elevated > 0 && t.Elevated < t.High && t.High < t.Critical && t.Critical <= 1) {
		return fmt.Errorf("risk thresholds must satisfy 0 < elevated < high < critical <= 1, got %.3f/%.3f/%.3f",
			t.Elevated, t.High, t.Critical)
	}
	return nil
}

// Classifier maps risk scores to risk levels.
type Classifier struct {
	bands []band
}

type band struct {
	upper float64 // exclusive
	level types.RiskLevel
}

// NewClassifier builds a Classifier from t.
func NewClassifier(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{bands: []band{
		{upper: t.Elevated, level: types.RiskNormal},
		{upper: t.High, level: types.RiskElevated},
		{upper: t.Critical, level: types.RiskHigh},
	}}, nil
}

// Classify returns the risk level for score.
// A score outside [0, 1] (or NaN) is an upstream defect and is reported as
// fault.KindOutOfRange, never clamped.
func (c *Classifier) Classify(score float64) (types.RiskLevel, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return "", fault.OutOfRange("risk_score", score, 0, 1)
	}
	for _, b := range c.bands {
		if score < b.upper {
			return b.level, nil
		}
	}
	return types.RiskCritical, nil
}
