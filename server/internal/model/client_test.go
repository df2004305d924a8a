package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

func testVector() types.FeatureVector {
	return types.FeatureVector{ICUOccupancyPct: 0.82, DailyPatients: 400, StaffOnDuty: 40, IsWeekend: true, WeatherSeverity: 0.3}
}

func newTestClient(url string, retries int) *HTTPClient {
	return NewHTTPClient(ClientConfig{
		Endpoint:     url,
		Version:      "cfg-v1",
		Timeout:      200 * time.Millisecond,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
	})
}

func TestHTTPClient_Success(t *testing.T) {
	var gotReq predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"risk_score":0.72,"expected_er_increase_pct":0.15,"expected_icu_increase_pct":0.1}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL, 0).Predict(context.Background(), testVector())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out.RiskScore != 0.72 || out.ERIncreasePct != 0.15 || out.ICUIncreasePct != 0.1 {
		t.Errorf("got %+v", out)
	}
	if out.ModelVersion != "cfg-v1" {
		t.Errorf("ModelVersion: got %q, want cfg-v1", out.ModelVersion)
	}
	if out.Fallback {
		t.Error("Fallback: got true, want false")
	}
	if gotReq.Features["icu_occupancy_pct"] != 0.82 || gotReq.Values[8] != 1 {
		t.Errorf("request features: got %+v", gotReq)
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"risk_score":0.3,"expected_er_increase_pct":0.1,"expected_icu_increase_pct":0.05,"model_version":"xgb-7"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	var retries int
	c.OnRetry(func(int, error) { retries++ })

	out, err := c.Predict(context.Background(), testVector())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out.ModelVersion != "xgb-7" {
		t.Errorf("ModelVersion: got %q, want xgb-7", out.ModelVersion)
	}
	if calls.Load() != 3 || retries != 2 {
		t.Errorf("calls=%d retries=%d, want 3 and 2", calls.Load(), retries)
	}
}

func TestHTTPClient_RetriesBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).Predict(context.Background(), testVector())
	if !fault.Is(err, fault.KindModelUnavailable) {
		t.Errorf("got %v, want MODEL_UNAVAILABLE", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3 (1 + 2 retries)", calls.Load())
	}
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad features", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Predict(context.Background(), testVector())
	if !fault.IsModelFailure(err) {
		t.Errorf("got %v, want a model failure", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv.URL, 1).Predict(context.Background(), testVector())
	if !fault.Is(err, fault.KindModelTimeout) {
		t.Errorf("got %v, want MODEL_TIMEOUT", err)
	}
}

func TestHTTPClient_OutOfRangeOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"risk_score":1.4,"expected_er_increase_pct":0.1,"expected_icu_increase_pct":0.1}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).Predict(context.Background(), testVector())
	if !fault.Is(err, fault.KindOutOfRange) {
		t.Errorf("got %v, want OUT_OF_RANGE", err)
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, 0).Predict(context.Background(), testVector())
	if !fault.Is(err, fault.KindModelUnavailable) {
		t.Errorf("got %v, want MODEL_UNAVAILABLE", err)
	}
}

func TestHTTPClient_MalformedReply(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"renamed fields", `{"score": 0.91, "er": 0.3}`},
		{"missing icu", `{"risk_score":0.4,"expected_er_increase_pct":0.1}`},
		{"empty object", `{}`},
		{"null score", `{"risk_score":null,"expected_er_increase_pct":0.1,"expected_icu_increase_pct":0.1}`},
		{"not json", `<html>ok</html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			out, err := newTestClient(srv.URL, 2).Predict(context.Background(), testVector())
			if !fault.Is(err, fault.KindModelUnavailable) {
				t.Fatalf("got out=%+v err=%v, want MODEL_UNAVAILABLE", out, err)
			}
			if out != (types.ModelOutput{}) {
				t.Errorf("output: got %+v, want zero value with the error", out)
			}
			if calls.Load() != 1 {
				t.Errorf("calls: got %d, want 1", calls.Load())
			}
		})
	}
}

func TestHTTPClient_ZeroForecastAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"risk_score":0,"expected_er_increase_pct":0,"expected_icu_increase_pct":0}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL, 0).Predict(context.Background(), testVector())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if out.RiskScore != 0 || out.ModelVersion != "cfg-v1" {
		t.Errorf("got %+v", out)
	}
}
