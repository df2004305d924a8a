package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/api"
	"github.com/surgecast/surgecast/server/internal/auth"
	"github.com/surgecast/surgecast/server/internal/compute"
	"github.com/surgecast/surgecast/server/internal/fault"
	"github.com/surgecast/surgecast/server/internal/features"
	"github.com/surgecast/surgecast/server/internal/forecast"
	"github.com/surgecast/surgecast/server/internal/hospital"
	"github.com/surgecast/surgecast/server/internal/ledger"
	"github.com/surgecast/surgecast/server/internal/metrics"
	"github.com/surgecast/surgecast/server/internal/signals"
	"github.com/surgecast/surgecast/server/internal/store"
)

const testDate = "2026-03-07" // a Saturday

// --- test helpers -----------------------------------------------------------

type env struct {
	h         http.Handler
	hospitals *hospital.Memory
	signals   *signals.Memory
	ledger    *ledger.Memory
	modelDown atomic.Bool
	calls     atomic.Int32
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{hospitals: hospital.NewMemory(), signals: signals.NewMemory(), ledger: ledger.NewMemory()}

	if _, err := e.hospitals.Put(ctx, &types.HospitalState{
		HospitalID:     "h1",
		ICUTotal:       100,
		ICUOccupied:    82,
		DailyPatients:  300,
		StaffOnDuty:    40,
		OxygenStatus:   types.SupplyNormal,
		MedicineStatus: types.SupplyNormal,
	}); err != nil {
		t.Fatalf("Put state: %v", err)
	}
	if err := e.signals.Put(ctx, &types.EnvironmentalSignal{Date: testDate, TempMaxC: 30, WeatherSeverity: 0.3, IsWeekend: true}); err != nil {
		t.Fatalf("Put signal: %v", err)
	}

	predictor := modelFunc(func(context.Context, types.FeatureVector) (types.ModelOutput, error) {
		e.calls.Add(1)
		if e.modelDown.Load() {
			return types.ModelOutput{}, fault.New(fault.KindModelUnavailable, "model endpoint down")
		}
		return types.ModelOutput{RiskScore: 0.72, ERIncreasePct: 0.15, ICUIncreasePct: 0.1, ModelVersion: "stub"}, nil
	})
	classifier, err := compute.NewClassifier(compute.DefaultThresholds())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	pipeline := forecast.New(features.New(e.hospitals, e.signals), predictor, classifier, compute.NewPlanner(0, 0))

	m := metrics.New()
	cache := store.New(pipeline, e.ledger, m, store.Config{})
	e.h = api.New(api.Deps{
		Briefings: cache,
		Hospitals: e.hospitals,
		Signals:   e.signals,
		Ledger:    e.ledger,
		Deriver:   signals.NewDeriver([]string{"2026-03-10"}),
		Status:    api.NewStatus(cache, nil, 15*time.Minute),
		Resolver:  auth.HeaderResolver{RoleHeader: "X-Role", HospitalHeader: "X-Hospital"},
		Metrics:   m,
		TTL:       15 * time.Minute,
	})
	return e
}

type modelFunc func(context.Context, types.FeatureVector) (types.ModelOutput, error)

func (f modelFunc) Predict(ctx context.Context, v types.FeatureVector) (types.ModelOutput, error) {
	return f(ctx, v)
}

type caller struct{ role, hospital string }

var (
	anonymous  = caller{}
	manager    = caller{"manager", "h1"}
	staff      = caller{"staff", "h1"}
	otherStaff = caller{"staff", "h2"}
	admin      = caller{"admin", ""}
	feed       = caller{"feed", ""}
)

func do(t *testing.T, h http.Handler, c caller, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if c.role != "" {
		req.Header.Set("X-Role", c.role)
	}
	if c.hospital != "" {
		req.Header.Set("X-Hospital", c.hospital)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func briefingPath(id string) string {
	return "/api/v1/hospitals/" + id + "/briefing?date=" + testDate
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_Public(t *testing.T) {
	e := newEnv(t)
	rr := do(t, e.h, anonymous, http.MethodGet, "/api/v1/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" {
		t.Errorf("status field: got %q, want ok", resp.Status)
	}
}

// --- briefing ---------------------------------------------------------------

func TestBriefing_ComputedThenCached(t *testing.T) {
	e := newEnv(t)

	rr := do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var first api.BriefingResponse
	decode(t, rr, &first)
	if first.Source != "computed" || first.Stale {
		t.Errorf("first: source %q stale %v, want computed/false", first.Source, first.Stale)
	}
	if first.RiskLevel != types.RiskHigh || first.HospitalID != "h1" || first.Date != testDate {
		t.Errorf("first briefing: %+v", first.Briefing)
	}
	if rr.Header().Get(api.StaleHeader) != "" {
		t.Errorf("%s set on fresh briefing", api.StaleHeader)
	}

	rr = do(t, e.h, manager, http.MethodGet, briefingPath("h1"), nil)
	var second api.BriefingResponse
	decode(t, rr, &second)
	if second.Source != "cache" || second.ID != first.ID {
		t.Errorf("second: source %q id %s, want cache and %s", second.Source, second.ID, first.ID)
	}
	if n := e.calls.Load(); n != 1 {
		t.Errorf("model calls: got %d, want 1", n)
	}
}

func TestBriefing_StaleOnModelFailure(t *testing.T) {
	e := newEnv(t)
	do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)

	e.modelDown.Store(true)
	rr := do(t, e.h, manager, http.MethodPut, "/api/v1/hospitals/h1/state", map[string]interface{}{
		"icu_total": 100, "icu_occupied": 90, "daily_patients": 300, "staff_on_duty": 40,
		"oxygen_status": "NORMAL", "medicine_status": "NORMAL",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("put state: got %d (%s)", rr.Code, rr.Body.String())
	}

	rr = do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if rr.Header().Get(api.StaleHeader) != "true" {
		t.Errorf("%s: got %q, want true", api.StaleHeader, rr.Header().Get(api.StaleHeader))
	}
	var resp api.BriefingResponse
	decode(t, rr, &resp)
	if !resp.Stale || resp.Source != "stale" || !strings.Contains(resp.StaleReason, "model endpoint down") {
		t.Errorf("stale response: %+v", resp)
	}
}

func TestBriefing_ModelFailureWithoutPrior(t *testing.T) {
	e := newEnv(t)
	e.modelDown.Store(true)
	rr := do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}
}

func TestBriefing_Errors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name   string
		c      caller
		path   string
		status int
	}{
		{"no credentials", anonymous, briefingPath("h1"), http.StatusUnauthorized},
		{"other hospital", otherStaff, briefingPath("h1"), http.StatusForbidden},
		{"feed cannot read", feed, briefingPath("h1"), http.StatusForbidden},
		{"missing state", admin, briefingPath("h9"), http.StatusUnprocessableEntity},
		{"missing signal", staff, "/api/v1/hospitals/h1/briefing?date=2026-01-01", http.StatusUnprocessableEntity},
		{"bad date", staff, "/api/v1/hospitals/h1/briefing?date=07-03-2026", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := do(t, e.h, tt.c, http.MethodGet, tt.path, nil)
		if rr.Code != tt.status {
			t.Errorf("%s: status got %d, want %d (body %s)", tt.name, rr.Code, tt.status, rr.Body.String())
		}
	}
}

// --- history ----------------------------------------------------------------

func TestHistory_Pagination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := e.ledger.Append(ctx, &types.Briefing{
			ID: string(rune('a' + i)), HospitalID: "h1", Date: testDate, ComputedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rr := do(t, e.h, staff, http.MethodGet, "/api/v1/hospitals/h1/history?limit=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var page api.HistoryResponse
	decode(t, rr, &page)
	if len(page.Items) != 2 || page.Items[0].ID != "e" || page.Items[1].ID != "d" {
		t.Fatalf("page 1: %+v", page.Items)
	}
	if page.NextBefore == "" {
		t.Fatal("next_before missing on full page")
	}

	rr = do(t, e.h, staff, http.MethodGet, "/api/v1/hospitals/h1/history?limit=10&before="+page.NextBefore, nil)
	page = api.HistoryResponse{}
	decode(t, rr, &page)
	if len(page.Items) != 3 || page.Items[0].ID != "c" {
		t.Errorf("page 2: %+v", page.Items)
	}
	if page.NextBefore != "" {
		t.Errorf("next_before on last page: %q", page.NextBefore)
	}
}

func TestHistory_Errors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		c      caller
		query  string
		status int
	}{
		{staff, "?limit=0", http.StatusBadRequest},
		{staff, "?limit=x", http.StatusBadRequest},
		{staff, "?before=yesterday", http.StatusBadRequest},
		{otherStaff, "", http.StatusForbidden},
		{admin, "", http.StatusOK},
	}
	for _, tt := range tests {
		rr := do(t, e.h, tt.c, http.MethodGet, "/api/v1/hospitals/h1/history"+tt.query, nil)
		if rr.Code != tt.status {
			t.Errorf("%s %q: status got %d, want %d", tt.c.role, tt.query, rr.Code, tt.status)
		}
	}
}

// --- state ------------------------------------------------------------------

func TestState_GetAndPut(t *testing.T) {
	e := newEnv(t)

	rr := do(t, e.h, staff, http.MethodGet, "/api/v1/hospitals/h1/state", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status %d", rr.Code)
	}

	body := map[string]interface{}{
		"icu_total": 100, "icu_occupied": 95, "daily_patients": 300, "staff_on_duty": 40,
		"oxygen_status": "LOW", "medicine_status": "NORMAL",
	}
	if rr := do(t, e.h, staff, http.MethodPut, "/api/v1/hospitals/h1/state", body); rr.Code != http.StatusForbidden {
		t.Errorf("staff put: got %d, want 403", rr.Code)
	}
	if rr := do(t, e.h, admin, http.MethodPut, "/api/v1/hospitals/h1/state", body); rr.Code != http.StatusForbidden {
		t.Errorf("admin put: got %d, want 403", rr.Code)
	}

	do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)

	rr = do(t, e.h, manager, http.MethodPut, "/api/v1/hospitals/h1/state", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("manager put: got %d (%s)", rr.Code, rr.Body.String())
	}
	var stored types.HospitalState
	decode(t, rr, &stored)
	if stored.HospitalID != "h1" || stored.ICUOccupied != 95 || stored.UpdatedAt.IsZero() {
		t.Errorf("stored state: %+v", stored)
	}

	rr = do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)
	var resp api.BriefingResponse
	decode(t, rr, &resp)
	if resp.Source != "computed" {
		t.Errorf("briefing after state update: source %q, want computed", resp.Source)
	}
}

func TestState_Errors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name   string
		c      caller
		path   string
		body   interface{}
		status int
	}{
		{"unknown hospital", admin, "/api/v1/hospitals/h9/state", nil, http.StatusNotFound},
		{"mismatched id", manager, "/api/v1/hospitals/h1/state",
			map[string]interface{}{"hospital_id": "h2", "icu_total": 10}, http.StatusBadRequest},
		{"occupied above total", manager, "/api/v1/hospitals/h1/state",
			map[string]interface{}{"icu_total": 10, "icu_occupied": 11, "oxygen_status": "NORMAL", "medicine_status": "NORMAL"}, http.StatusBadRequest},
		{"unknown field", manager, "/api/v1/hospitals/h1/state",
			map[string]interface{}{"beds": 10}, http.StatusBadRequest},
		{"other manager", caller{"manager", "h2"}, "/api/v1/hospitals/h1/state",
			map[string]interface{}{"icu_total": 10}, http.StatusForbidden},
	}
	for _, tt := range tests {
		method := http.MethodPut
		if tt.body == nil {
			method = http.MethodGet
		}
		rr := do(t, e.h, tt.c, method, tt.path, tt.body)
		if rr.Code != tt.status {
			t.Errorf("%s: status got %d, want %d (body %s)", tt.name, rr.Code, tt.status, rr.Body.String())
		}
	}
}

// --- signals ----------------------------------------------------------------

func TestSignals_ObservationIsDerived(t *testing.T) {
	e := newEnv(t)
	rr := do(t, e.h, feed, http.MethodPut, "/api/v1/signals/2026-03-10", map[string]interface{}{
		"temp_max_c": 40.0, "rain_mm": 0.0,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	got, err := e.signals.Get(context.Background(), "2026-03-10")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsFestival || got.IsWeekend {
		t.Errorf("flags: festival %v weekend %v, want true/false", got.IsFestival, got.IsWeekend)
	}
	if got.WeatherSeverity < 0.249 || got.WeatherSeverity > 0.251 {
		t.Errorf("severity: got %v, want 0.25", got.WeatherSeverity)
	}
	if got.SeasonalIllnessWeight != 0.3 {
		t.Errorf("seasonal weight: got %v, want 0.3", got.SeasonalIllnessWeight)
	}
}

func TestSignals_FullSignalInvalidatesDate(t *testing.T) {
	e := newEnv(t)
	do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)

	rr := do(t, e.h, feed, http.MethodPut, "/api/v1/signals/"+testDate, map[string]interface{}{
		"temp_max_c": 31.0, "rain_mm": 2.0, "weather_severity": 0.4,
		"is_weekend": true, "is_festival": false, "seasonal_illness_weight": 0.3,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}

	rr = do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)
	var resp api.BriefingResponse
	decode(t, rr, &resp)
	if resp.Source != "computed" {
		t.Errorf("briefing after signal update: source %q, want computed", resp.Source)
	}
}

func TestSignals_Errors(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name   string
		c      caller
		path   string
		body   interface{}
		status int
	}{
		{"admin cannot push", admin, "/api/v1/signals/" + testDate, map[string]interface{}{"temp_max_c": 30.0}, http.StatusForbidden},
		{"bad path date", feed, "/api/v1/signals/tomorrow", map[string]interface{}{"temp_max_c": 30.0}, http.StatusBadRequest},
		{"date mismatch", feed, "/api/v1/signals/" + testDate, map[string]interface{}{"date": "2026-03-08"}, http.StatusBadRequest},
		{"partial signal", feed, "/api/v1/signals/" + testDate, map[string]interface{}{"weather_severity": 0.2}, http.StatusBadRequest},
		{"severity out of range", feed, "/api/v1/signals/" + testDate, map[string]interface{}{
			"weather_severity": 1.5, "is_weekend": true, "is_festival": false, "seasonal_illness_weight": 0.3,
		}, http.StatusBadRequest},
		{"negative rain", feed, "/api/v1/signals/" + testDate, map[string]interface{}{"rain_mm": -1.0}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := do(t, e.h, tt.c, http.MethodPut, tt.path, tt.body)
		if rr.Code != tt.status {
			t.Errorf("%s: status got %d, want %d (body %s)", tt.name, rr.Code, tt.status, rr.Body.String())
		}
	}
}

// --- status, metrics, routing ----------------------------------------------

func TestStatus(t *testing.T) {
	e := newEnv(t)
	do(t, e.h, staff, http.MethodGet, briefingPath("h1"), nil)

	if rr := do(t, e.h, manager, http.MethodGet, "/api/v1/status", nil); rr.Code != http.StatusForbidden {
		t.Errorf("manager: got %d, want 403", rr.Code)
	}

	rr := do(t, e.h, admin, http.MethodGet, "/api/v1/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: got %d", rr.Code)
	}
	var resp api.StatusResponse
	decode(t, rr, &resp)
	if resp.HospitalCount != 1 || resp.ByRiskLevel[types.RiskHigh] != 1 {
		t.Errorf("status: %+v", resp)
	}
	if len(resp.Hospitals) != 1 || resp.Hospitals[0].HospitalID != "h1" {
		t.Errorf("hospitals: %+v", resp.Hospitals)
	}
}

func TestMetrics_PublicAndCountsRequests(t *testing.T) {
	e := newEnv(t)
	do(t, e.h, anonymous, http.MethodGet, "/api/v1/health", nil)

	rr := do(t, e.h, anonymous, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`) {
		t.Errorf("metrics output missing health request counter:\n%s", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)
	rr := do(t, e.h, admin, http.MethodGet, "/api/v1/pipelines", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}
