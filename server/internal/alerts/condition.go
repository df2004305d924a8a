package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/surgecast/surgecast/pkg/types"
)

// evalCondition evaluates a rule condition string against a Briefing.
//
// Supported expressions (field operator value):
//
//	risk_level >= high
//	risk_score > 0.8
//	er_surge_pct > 0.15
//	icu_surge_pct > 0.1
//	additional_icu_beds > 0
//	additional_staff >= 5
//	supply_status == critical
//	is_fallback == true
//
// risk_level compares by severity rank, so "risk_level >= high" matches HIGH
// and CRITICAL. supply_status and is_fallback accept only == and !=.
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, b *types.Briefing) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "risk_level":
		want, ok := types.ParseRiskLevel(rhs)
		if !ok {
			return false, 0
		}
		v := float64(b.RiskLevel.Rank())
		return compareFloat(v, op, float64(want.Rank())), b.RiskScore

	case "supply_status":
		return compareString(string(b.SupplyStatus), op, rhs), 0

	case "is_fallback":
		want, err := strconv.ParseBool(rhs)
		if err != nil {
			return false, 0
		}
		switch op {
		case "==":
			return b.Fallback == want, 0
		case "!=":
			return b.Fallback != want, 0
		}
		return false, 0

	default:
		v, ok := numericField(field, b)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// ValidateCondition reports whether cond is an expression evalCondition
// understands. Rules that fail validation never fire.
func ValidateCondition(cond string) error {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return fmt.Errorf("condition %q: want \"field operator value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "risk_level":
		if _, ok := types.ParseRiskLevel(rhs); !ok {
			return fmt.Errorf("condition %q: unknown risk level %q", cond, rhs)
		}
		return checkOp(cond, op, ">", ">=", "<", "<=", "==", "!=")
	case "supply_status":
		return checkOp(cond, op, "==", "!=")
	case "is_fallback":
		if _, err := strconv.ParseBool(rhs); err != nil {
			return fmt.Errorf("condition %q: want true or false", cond)
		}
		return checkOp(cond, op, "==", "!=")
	}
	if _, ok := numericField(field, &types.Briefing{}); !ok {
		return fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	if _, err := strconv.ParseFloat(rhs, 64); err != nil {
		return fmt.Errorf("condition %q: %q is not a number", cond, rhs)
	}
	return checkOp(cond, op, ">", ">=", "<", "<=", "==", "!=")
}

func checkOp(cond, op string, allowed ...string) error {
	for _, a := range allowed {
		if op == a {
			return nil
		}
	}
	return fmt.Errorf("condition %q: operator %q not supported", cond, op)
}

// numericField maps a field name to its value in the briefing.
func numericField(field string, b *types.Briefing) (float64, bool) {
	switch field {
	case "risk_score":
		return b.RiskScore, true
	case "er_surge_pct":
		return b.ERSurgePct, true
	case "icu_surge_pct":
		return b.ICUSurgePct, true
	case "additional_icu_beds":
		return float64(b.AdditionalICUBeds), true
	case "additional_staff":
		return float64(b.AdditionalStaff), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func compareString(v, op, want string) bool {
	switch op {
	case "==":
		return strings.EqualFold(v, want)
	case "!=":
		return !strings.EqualFold(v, want)
	default:
		return false
	}
}
