package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/auth"
	"github.com/surgecast/surgecast/server/internal/fault"
	"github.com/surgecast/surgecast/server/internal/hospital"
	"github.com/surgecast/surgecast/server/internal/ledger"
	"github.com/surgecast/surgecast/server/internal/metrics"
	"github.com/surgecast/surgecast/server/internal/signals"
	"github.com/surgecast/surgecast/server/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	maxBodyBytes        = 1 << 20

	// StaleHeader is set to "true" on briefing responses served stale.
	StaleHeader = "X-Briefing-Stale"
)

// Briefings is the forecast cache as seen by the API. *store.Cache
// implements it.
type Briefings interface {
	GetOrCompute(ctx context.Context, hospitalID, date string, ttl time.Duration) (store.Result, error)
	Invalidate(hospitalID string)
	Snapshot() []*types.Briefing
}

// Deps are the components the API serves.
type Deps struct {
	Briefings Briefings
	Hospitals hospital.Repository
	Signals   signals.Store
	Ledger    ledger.Ledger
	Deriver   *signals.Deriver
	Status    *Status
	Resolver  auth.Resolver
	Metrics   *metrics.Metrics

	// Stream serves /ws/stream. Nil leaves the route unregistered.
	Stream http.Handler

	// TTL is the briefing freshness window (forecast.ttl).
	TTL time.Duration

	// Location decides which civil date "today" is.
	Location *time.Location
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps Deps
	now  func() time.Time
	mux  chi.Router
}

// New creates a Handler and registers all routes.
func New(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Deriver == nil {
		d.Deriver = signals.NewDeriver(nil)
	}
	h := &Handler{deps: d, now: time.Now, mux: chi.NewRouter()}

	r := h.mux
	r.Use(middleware.RequestID)
	r.Use(accessLog(d.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/api/v1/health", h.health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Resolver))

		r.Route("/api/v1/hospitals/{id}", func(r chi.Router) {
			r.Get("/briefing", h.getBriefing)
			r.Get("/history", h.getHistory)
			r.Get("/state", h.getState)
			r.Put("/state", h.putState)
		})
		r.Put("/api/v1/signals/{date}", h.putSignal)
		r.Get("/api/v1/status", h.getStatus)
		if d.Stream != nil {
			r.With(requireAdmin).Get("/ws/stream", d.Stream.ServeHTTP)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	})
}

// getBriefing returns GET /api/v1/hospitals/{id}/briefing.
func (h *Handler) getBriefing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.allow(w, r, func(p auth.Principal) bool { return p.CanRead(id) }) {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = types.DateOf(h.now().In(h.deps.Location))
	} else if _, err := types.ParseDate(date); err != nil {
		writeError(w, r, fault.Wrap(fault.KindInvalidArgument, err, "query parameter date"))
		return
	}

	res, err := h.deps.Briefings.GetOrCompute(r.Context(), id, date, h.deps.TTL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := BriefingResponse{Briefing: res.Briefing, Source: string(res.Source)}
	if res.Source == store.SourceStale {
		resp.Stale = true
		if res.Cause != nil {
			resp.StaleReason = res.Cause.Error()
		}
		w.Header().Set(StaleHeader, "true")
	}
	if res.LedgerErr != nil {
		resp.Warnings = append(resp.Warnings, "briefing not recorded in history: "+res.LedgerErr.Error())
	}
	jsonResp(w, http.StatusOK, resp)
}

// getHistory returns GET /api/v1/hospitals/{id}/history?limit=&before=.
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.allow(w, r, func(p auth.Principal) bool { return p.CanRead(id) }) {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, fault.New(fault.KindInvalidArgument, "limit must be a positive integer, got %q", raw))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, r, fault.Wrap(fault.KindInvalidArgument, err, "before must be RFC3339"))
			return
		}
		before = t
	}

	items, err := h.deps.Ledger.Query(r.Context(), id, limit, before)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := HistoryResponse{HospitalID: id, Items: items}
	if len(items) == limit {
		resp.NextBefore = items[len(items)-1].ComputedAt.UTC().Format(time.RFC3339Nano)
	}
	jsonResp(w, http.StatusOK, resp)
}

// getState returns GET /api/v1/hospitals/{id}/state.
func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.allow(w, r, func(p auth.Principal) bool { return p.CanRead(id) }) {
		return
	}
	s, err := h.deps.Hospitals.Get(r.Context(), id)
	if err != nil {
		if fault.Is(err, fault.KindMissingState) {
			jsonErr(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, s)
}

// putState handles PUT /api/v1/hospitals/{id}/state. The cached briefing is
// invalidated so the next read recomputes from the new state.
func (h *Handler) putState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p auth.Principal
	if !h.allow(w, r, func(pr auth.Principal) bool { p = pr; return pr.CanUpdateState(id) }) {
		return
	}

	var s types.HospitalState
	if err := decodeBody(w, r, &s); err != nil {
		writeError(w, r, err)
		return
	}
	if s.HospitalID != "" && s.HospitalID != id {
		writeError(w, r, fault.New(fault.KindInvalidArgument, "body hospital_id %q does not match path %q", s.HospitalID, id))
		return
	}
	s.HospitalID = id
	s.UpdatedBy = p.Subject

	stored, err := h.deps.Hospitals.Put(r.Context(), &s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.deps.Briefings.Invalidate(id)
	slog.Info("api: hospital state updated", "hospital", id, "by", p.Subject)
	jsonResp(w, http.StatusOK, stored)
}

// signalBody accepts either a full signal or a raw observation. When the
// derived fields are absent the body is treated as an observation and run
// through the Deriver.
type signalBody struct {
	Date                  string   `json:"date"`
	TempMaxC              float64  `json:"temp_max_c"`
	RainMM                float64  `json:"rain_mm"`
	WeatherSeverity       *float64 `json:"weather_severity"`
	IsWeekend             *bool    `json:"is_weekend"`
	IsFestival            *bool    `json:"is_festival"`
	SeasonalIllnessWeight *float64 `json:"seasonal_illness_weight"`
}

func (b signalBody) derived() bool {
	return b.WeatherSeverity != nil || b.SeasonalIllnessWeight != nil
}

// putSignal handles PUT /api/v1/signals/{date}. Cached briefings for that
// date are invalidated.
func (h *Handler) putSignal(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, auth.Principal.CanPushSignals) {
		return
	}
	date := chi.URLParam(r, "date")
	if _, err := types.ParseDate(date); err != nil {
		writeError(w, r, fault.Wrap(fault.KindInvalidArgument, err, "path date"))
		return
	}

	var body signalBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Date != "" && body.Date != date {
		writeError(w, r, fault.New(fault.KindInvalidArgument, "body date %q does not match path %q", body.Date, date))
		return
	}

	var sig *types.EnvironmentalSignal
	if body.derived() {
		if body.WeatherSeverity == nil || body.SeasonalIllnessWeight == nil || body.IsWeekend == nil || body.IsFestival == nil {
			writeError(w, r, fault.New(fault.KindInvalidArgument,
				"a full signal needs weather_severity, is_weekend, is_festival and seasonal_illness_weight"))
			return
		}
		sig = &types.EnvironmentalSignal{
			Date:                  date,
			TempMaxC:              body.TempMaxC,
			RainMM:                body.RainMM,
			WeatherSeverity:       *body.WeatherSeverity,
			IsWeekend:             *body.IsWeekend,
			IsFestival:            *body.IsFestival,
			SeasonalIllnessWeight: *body.SeasonalIllnessWeight,
		}
		if err := signals.Validate(sig); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		derived, err := h.deps.Deriver.Derive(signals.Observation{Date: date, TempMaxC: body.TempMaxC, RainMM: body.RainMM})
		if err != nil {
			writeError(w, r, err)
			return
		}
		sig = derived
	}

	if err := h.deps.Signals.Put(r.Context(), sig); err != nil {
		writeError(w, r, err)
		return
	}

	invalidated := 0
	for _, b := range h.deps.Briefings.Snapshot() {
		if b.Date == date {
			h.deps.Briefings.Invalidate(b.HospitalID)
			invalidated++
		}
	}
	slog.Info("api: signal stored", "date", date, "derived", !body.derived(), "invalidated", invalidated)
	jsonResp(w, http.StatusOK, sig)
}

// getStatus returns GET /api/v1/status.
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, auth.Principal.CanViewStatus) {
		return
	}
	jsonResp(w, http.StatusOK, h.deps.Status.Build())
}

// --- helpers ----------------------------------------------------------------

// allow writes 401/403 and returns false unless the request's principal
// passes check.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, check func(auth.Principal) bool) bool {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		jsonResp(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Kind: string(fault.KindUnauthenticated)})
		return false
	}
	if !check(p) {
		jsonResp(w, http.StatusForbidden, errorResponse{Error: "forbidden", Kind: string(fault.KindForbidden)})
		return false
	}
	return true
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok || !p.CanViewStatus() {
			jsonErr(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.KindInvalidArgument, err, "decode request body")
	}
	return nil
}

// writeError maps err to a status code. Server-side failures are logged at
// error level with the request ID; client errors are not logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to write.
		return
	}
	code := fault.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) && code == http.StatusInternalServerError {
		code = http.StatusServiceUnavailable
	}
	kind := fault.KindOf(err)
	if code >= 500 {
		slog.Error("api: request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"kind", kind,
			"err", err,
		)
	}
	jsonResp(w, code, errorResponse{Error: err.Error(), Kind: string(kind)})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// accessLog records every request in the log and in the HTTP metrics,
// labelled by chi route pattern so path parameters do not explode label
// cardinality.
func accessLog(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			d := time.Since(start)
			m.HTTPRequest(route, r.Method, status, d)
			slog.Debug("api: request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", d,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
