package api

import (
	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/alerts"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	GeneratedAt string `json:"generated_at"` // RFC3339
}

// BriefingResponse is the payload for GET /api/v1/hospitals/{id}/briefing.
type BriefingResponse struct {
	*types.Briefing

	// Source is cache | computed | stale.
	Source string `json:"source"`

	// Stale is true when the briefing stands in for a failed recomputation.
	Stale       bool   `json:"stale"`
	StaleReason string `json:"stale_reason,omitempty"`

	// Warnings lists non-fatal problems, such as a failed history append.
	Warnings []string `json:"warnings,omitempty"`
}

// HistoryResponse is the payload for GET /api/v1/hospitals/{id}/history.
type HistoryResponse struct {
	HospitalID string            `json:"hospital_id"`
	Items      []*types.Briefing `json:"items"`

	// NextBefore is the cursor for the next page (RFC3339Nano computed_at of
	// the last item). Empty when this page is the last.
	NextBefore string `json:"next_before,omitempty"`
}

// StatusHint is one human-readable insight about a hospital's briefing.
// The dashboard shows these as chips on the hospital card.
type StatusHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical"
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

// HospitalStatus is one hospital entry in the status view.
type HospitalStatus struct {
	HospitalID        string             `json:"hospital_id"`
	Date              string             `json:"date"`
	RiskLevel         types.RiskLevel    `json:"risk_level"`
	RiskScore         float64            `json:"risk_score"`
	AdditionalICUBeds int                `json:"additional_icu_beds"`
	AdditionalStaff   int                `json:"additional_staff"`
	SupplyStatus      types.SupplyStatus `json:"supply_status"`
	Summary           string             `json:"summary"`
	Fallback          bool               `json:"is_fallback"`
	ComputedAt        string             `json:"computed_at"` // RFC3339
	Hints             []StatusHint       `json:"hints"`
}

// StatusResponse is the payload for GET /api/v1/status and every /ws/stream
// message.
type StatusResponse struct {
	HospitalCount          int                     `json:"hospital_count"`
	ByRiskLevel            map[types.RiskLevel]int `json:"by_risk_level"`
	TotalAdditionalICUBeds int                     `json:"total_additional_icu_beds"`
	TotalAdditionalStaff   int                     `json:"total_additional_staff"`
	FiringAlerts           int                     `json:"firing_alerts"`
	Hospitals              []HospitalStatus        `json:"hospitals"`
	Alerts                 []*alerts.Alert         `json:"alerts"`
	GeneratedAt            string                  `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
