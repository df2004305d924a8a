package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/alerts"
)

// Snapshotter lists the latest briefing per hospital. *store.Cache
// implements it.
type Snapshotter interface {
	Snapshot() []*types.Briefing
}

// AlertSource lists firing and recently resolved alerts. *alerts.Engine
// implements it.
type AlertSource interface {
	Active() []*alerts.Alert
}

// Status builds the cross-hospital view served by GET /api/v1/status and
// pushed over /ws/stream.
type Status struct {
	briefings Snapshotter
	alerts    AlertSource
	ttl       time.Duration
	now       func() time.Time
}

// NewStatus returns a Status. Briefings older than ttl get a "stale" hint.
// alerts may be nil.
func NewStatus(b Snapshotter, a AlertSource, ttl time.Duration) *Status {
	return &Status{briefings: b, alerts: a, ttl: ttl, now: time.Now}
}

// Build assembles the current status.
func (s *Status) Build() StatusResponse {
	now := s.now()
	briefings := s.briefings.Snapshot()

	resp := StatusResponse{
		HospitalCount: len(briefings),
		ByRiskLevel: map[types.RiskLevel]int{
			types.RiskNormal:   0,
			types.RiskElevated: 0,
			types.RiskHigh:     0,
			types.RiskCritical: 0,
		},
		Hospitals:   make([]HospitalStatus, 0, len(briefings)),
		Alerts:      []*alerts.Alert{},
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}

	for _, b := range briefings {
		resp.ByRiskLevel[b.RiskLevel]++
		resp.TotalAdditionalICUBeds += b.AdditionalICUBeds
		resp.TotalAdditionalStaff += b.AdditionalStaff
		resp.Hospitals = append(resp.Hospitals, HospitalStatus{
			HospitalID:        b.HospitalID,
			Date:              b.Date,
			RiskLevel:         b.RiskLevel,
			RiskScore:         b.RiskScore,
			AdditionalICUBeds: b.AdditionalICUBeds,
			AdditionalStaff:   b.AdditionalStaff,
			SupplyStatus:      b.SupplyStatus,
			Summary:           b.Summary,
			Fallback:          b.Fallback,
			ComputedAt:        b.ComputedAt.UTC().Format(time.RFC3339),
			Hints:             hintsFor(b, now, s.ttl),
		})
	}

	// Most at-risk hospitals first.
	sort.SliceStable(resp.Hospitals, func(i, j int) bool {
		a, b := resp.Hospitals[i], resp.Hospitals[j]
		if a.RiskLevel.Rank() != b.RiskLevel.Rank() {
			return a.RiskLevel.Rank() > b.RiskLevel.Rank()
		}
		return a.RiskScore > b.RiskScore
	})

	if s.alerts != nil {
		resp.Alerts = s.alerts.Active()
		for _, a := range resp.Alerts {
			if a.State == "firing" {
				resp.FiringAlerts++
			}
		}
	}
	return resp
}

// hintsFor derives dashboard hints from a briefing.
// Hints are ordered: critical first, then warnings, then info.
func hintsFor(b *types.Briefing, now time.Time, ttl time.Duration) []StatusHint {
	var critical, warning, info []StatusHint

	if b.RiskLevel == types.RiskCritical {
		score := b.RiskScore
		critical = append(critical, StatusHint{
			Key:   "critical_risk",
			Level: "critical",
			Title: "Critical surge risk",
			Detail: fmt.Sprintf("Risk score %.0f%% for %s. The briefing asks for escalation to "+
				"incident command; check that the surge staffing protocol is active.", score*100, b.Date),
			Value: &score,
		})
	}
	if b.SupplyStatus == types.SupplyStatusCritical {
		critical = append(critical, StatusHint{
			Key:    "supply_critical",
			Level:  "critical",
			Title:  "Supplies critical",
			Detail: "A supply is critical and the expected ER surge is above the planning threshold. Restock or arrange transfers before the surge.",
		})
	}

	if ttl > 0 {
		if age := now.Sub(b.ComputedAt); age > ttl {
			mins := age.Minutes()
			warning = append(warning, StatusHint{
				Key:   "stale",
				Level: "warning",
				Title: "Briefing is stale",
				Detail: fmt.Sprintf("Computed %.0f minutes ago. The last recomputation may have failed; "+
					"the briefing reflects older inputs until the next successful run.", mins),
				Value: &mins,
			})
		}
	}
	if b.SupplyStatus == types.SupplyStatusLow {
		warning = append(warning, StatusHint{
			Key:    "supply_low",
			Level:  "warning",
			Title:  "Supplies low",
			Detail: "A supply is low and the expected ER surge is above the planning threshold.",
		})
	}
	if b.AdditionalICUBeds > 0 || b.AdditionalStaff > 0 {
		warning = append(warning, StatusHint{
			Key:   "capacity_gap",
			Level: "warning",
			Title: "Capacity gap",
			Detail: fmt.Sprintf("Expected load needs %d more ICU bed(s) and %d more staff member(s) than currently available.",
				b.AdditionalICUBeds, b.AdditionalStaff),
		})
	}

	if b.Fallback {
		info = append(info, StatusHint{
			Key:   "fallback_model",
			Level: "info",
			Title: "Heuristic forecast",
			Detail: "No trained model is configured, so this briefing comes from the rule-based heuristic. " +
				"Scores are coarser than a trained model's.",
		})
	}

	hints := make([]StatusHint, 0, len(critical)+len(warning)+len(info))
	hints = append(hints, critical...)
	hints = append(hints, warning...)
	return append(hints, info...)
}
