package advisor

import (
	"fmt"

	"github.com/surgecast/surgecast/pkg/types"
)

// NoAction is the single item returned when no rule fires.
const NoAction = "No action needed: maintain standard operations"

// Input is everything the rule table looks at.
type Input struct {
	RiskLevel         types.RiskLevel
	AdditionalICUBeds int
	AdditionalStaff   int
	Oxygen            types.SupplyLevel
	Medicine          types.SupplyLevel
}

// Risk-level guidance. The first item of the HIGH and CRITICAL lists is the
// escalation item; ELEVATED and NORMAL never escalate.
var guidance = map[types.RiskLevel][]string{
	types.RiskCritical: {
		"Escalate to incident command: activate surge staffing protocol (level 3)",
		"Divert non-critical ambulances to nearby facilities",
		"Suspend elective surgeries for the next 48 hours",
		"Open emergency overflow wards and prepare temporary beds",
	},
	types.RiskHigh: {
		"Escalate to on-call leadership: call in on-call nursing staff",
		"Expedite discharge of medically fit patients",
		"Prioritize ICU bed turnaround and cleaning",
		"Review oxygen, PPE and medicine inventory levels",
	},
	types.RiskElevated: {
		"Monitor ICU bed availability every 2 hours",
		"Brief shift leads on the expected increase in patient intake",
		"Verify trauma and emergency units are on standby",
	},
}

// Generate returns the ordered recommendation list for in.
//
// Priority:
//  1. supply: oxygen (critical before low), then medicine
//  2. capacity: ICU beds, then staff
//  3. risk-level guidance
//
// Duplicates are dropped keeping the first occurrence. When nothing fires the
// result is exactly []string{NoAction}.
func Generate(in Input) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	// ── Supply ───────────────────────────────────────────────────────────────
	if rec := supplyItem("oxygen", in.Oxygen); rec != "" {
		add(rec)
	}
	if rec := supplyItem("medicine", in.Medicine); rec != "" {
		add(rec)
	}

	// ── Capacity ─────────────────────────────────────────────────────────────
	if in.AdditionalICUBeds > 0 {
		add(fmt.Sprintf("Prepare %d additional ICU %s", in.AdditionalICUBeds, plural(in.AdditionalICUBeds, "bed", "beds")))
	}
	if in.AdditionalStaff > 0 {
		add(fmt.Sprintf("Schedule %d additional staff %s", in.AdditionalStaff, plural(in.AdditionalStaff, "member", "members")))
	}

	// ── Risk-level guidance ──────────────────────────────────────────────────
	for _, rec := range guidance[in.RiskLevel] {
		add(rec)
	}

	if len(out) == 0 {
		return []string{NoAction}
	}
	return out
}

// IsEscalation reports whether rec is a risk escalation item.
func IsEscalation(rec string) bool {
	for _, level := range []types.RiskLevel{types.RiskCritical, types.RiskHigh} {
		if rec == guidance[level][0] {
			return true
		}
	}
	return false
}

func supplyItem(name string, level types.SupplyLevel) string {
	switch level {
	case types.SupplyCritical:
		return fmt.Sprintf("Urgent: %s supply critical, restock immediately and arrange emergency transfer", name)
	case types.SupplyLow:
		return fmt.Sprintf("Restock %s before the expected surge", name)
	}
	return ""
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
