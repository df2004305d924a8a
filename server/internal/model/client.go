package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
	"github.com/surgecast/surgecast/server/internal/retry"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultRetryBackoff = 200 * time.Millisecond
	maxResponseBytes    = 1 << 20
)

// ClientConfig configures HTTPClient.
type ClientConfig struct {
	Endpoint     string
	Version      string        // reported when the service does not name itself
	Timeout      time.Duration // per attempt
	MaxRetries   int           // retries after the first attempt
	RetryBackoff time.Duration // initial wait between attempts
	RateLimit    float64       // requests per second; 0 disables limiting
	Burst        int
}

// HTTPClient calls a model service that accepts
//
//	POST {"features": {"icu_occupancy_pct": 0.82, ...}, "values": [0.82, ...]}
//
// and answers with the three output fields.
type HTTPClient struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	onRetry func(attempt int, err error)
}

// NewHTTPClient returns a client for cfg.Endpoint.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: limiter,
	}
}

// OnRetry registers a callback invoked before each retry. Used for metrics.
func (c *HTTPClient) OnRetry(fn func(attempt int, err error)) {
	c.onRetry = fn
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
	Values   [11]float64        `json:"values"`
}

// Predict implements Predictor.
func (c *HTTPClient) Predict(ctx context.Context, v types.FeatureVector) (types.ModelOutput, error) {
	values := v.Values()
	req := predictRequest{Features: make(map[string]float64, len(values)), Values: values}
	for i, name := range types.FeatureNames {
		req.Features[name] = values[i]
	}
	body, err := json.Marshal(req)
	if err != nil {
		return types.ModelOutput{}, fmt.Errorf("model: marshal request: %w", err)
	}

	bo := retry.New(c.cfg.RetryBackoff, 8*c.cfg.RetryBackoff)
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if c.onRetry != nil {
				c.onRetry(attempt, lastErr)
			}
			wait := bo.Next()
			slog.Warn("model: retrying prediction", "attempt", attempt, "retry_in", wait, "err", lastErr)
			if err := retry.Sleep(ctx, wait); err != nil {
				return types.ModelOutput{}, classify(err)
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return types.ModelOutput{}, classify(err)
		}

		out, err := c.attempt(ctx, body)
		if err == nil {
			if err := CheckOutput(out); err != nil {
				return types.ModelOutput{}, err
			}
			if out.ModelVersion == "" {
				out.ModelVersion = c.cfg.Version
			}
			return out, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return types.ModelOutput{}, classify(lastErr)
}

// statusError is a non-2xx answer from the model service.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model service returned %d: %s", e.code, e.body)
}

func (c *HTTPClient) attempt(ctx context.Context, body []byte) (types.ModelOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return types.ModelOutput{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return types.ModelOutput{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return types.ModelOutput{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.ModelOutput{}, &statusError{code: resp.StatusCode, body: truncate(string(data), 200)}
	}

	var pr predictResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return types.ModelOutput{}, &contractError{reason: "decode response: " + err.Error()}
	}
	return pr.output()
}

// predictResponse mirrors the model reply. Pointers tell a missing field
// apart from a zero forecast.
type predictResponse struct {
	RiskScore      *float64 `json:"risk_score"`
	ERIncreasePct  *float64 `json:"expected_er_increase_pct"`
	ICUIncreasePct *float64 `json:"expected_icu_increase_pct"`
	ModelVersion   string   `json:"model_version"`
}

func (pr predictResponse) output() (types.ModelOutput, error) {
	var missing []string
	if pr.RiskScore == nil {
		missing = append(missing, "risk_score")
	}
	if pr.ERIncreasePct == nil {
		missing = append(missing, "expected_er_increase_pct")
	}
	if pr.ICUIncreasePct == nil {
		missing = append(missing, "expected_icu_increase_pct")
	}
	if len(missing) > 0 {
		return types.ModelOutput{}, &contractError{reason: "missing " + strings.Join(missing, ", ")}
	}
	return types.ModelOutput{
		RiskScore:      *pr.RiskScore,
		ERIncreasePct:  *pr.ERIncreasePct,
		ICUIncreasePct: *pr.ICUIncreasePct,
		ModelVersion:   pr.ModelVersion,
	}, nil
}

// contractError is a 2xx reply that does not carry a usable forecast.
// The same request would get the same reply, so it is not retried.
type contractError struct {
	reason string
}

func (e *contractError) Error() string {
	return "malformed model response: " + e.reason
}

// retryable reports whether another attempt may succeed. 4xx answers mean the
// request itself is wrong and are not retried, nor are malformed replies.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	var ce *contractError
	return !errors.As(err, &ce)
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindModelTimeout, err, "model call timed out")
	}
	return fault.Wrap(fault.KindModelUnavailable, err, "model unavailable")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
