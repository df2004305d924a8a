package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/config"
	"github.com/surgecast/surgecast/server/internal/metrics"
)

const (
	defaultCooldown  = 15 * time.Minute
	defaultRetryBase = 500 * time.Millisecond
	maxHistoryLen    = 200
	recentWindow     = time.Hour
)

const (
	stateFiring   = "firing"
	stateResolved = "resolved"

	severityCritical = "critical"
	severityWarning  = "warning"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	HospitalID string     `json:"hospital_id"`
	BriefingID string     `json:"briefing_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against published briefings and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	metrics *metrics.Metrics
	client  *http.Client
	now     func() time.Time

	// retryBase is the first wait between webhook attempts.
	retryBase time.Duration

	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:hospitalID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts

	// deliverFn is replaced in tests to observe deliveries synchronously.
	deliverFn func(a *Alert)
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid: Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, m *metrics.Metrics) *Engine {
	e := &Engine{
		metrics:   m,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
		retryBase: defaultRetryBase,
		active:    make(map[string]*Alert),
		lastFire:  make(map[string]time.Time),
	}
	e.deliverFn = func(a *Alert) { go e.deliver(a) }
	e.SetRules(cfg)
	return e
}

// SetRules replaces the rules and webhooks, typically on config reload.
// Rules with an invalid condition are logged and skipped. Firing alerts whose
// rule no longer exists are dropped without a resolve notification.
func (e *Engine) SetRules(cfg config.AlertsConfig) {
	rules := make([]config.AlertRule, 0, len(cfg.Rules))
	names := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if err := ValidateCondition(r.Condition); err != nil {
			slog.Warn("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		rules = append(rules, r)
		names[r.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.webhooks = append([]config.WebhookConfig(nil), cfg.Webhooks...)
	for key, a := range e.active {
		if !names[a.RuleName] {
			delete(e.active, key)
			delete(e.lastFire, key)
		}
	}
}

// Evaluate tests all configured rules against b.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing for b's hospital but whose condition is now false
// are resolved.
func (e *Engine) Evaluate(b *types.Briefing) {
	if b == nil {
		return
	}

	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range rules {
		key := rule.Name + ":" + b.HospitalID
		fires, value := evalCondition(rule.Condition, b)

		e.mu.Lock()
		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			last, seen := e.lastFire[key]
			if seen && now.Sub(last) <= cooldown {
				e.mu.Unlock()
				continue
			}
			sev := rule.Severity
			if sev == "" {
				sev = severityWarning
			}
			a := &Alert{
				ID:         fmt.Sprintf("%s:%s:%d", rule.Name, b.HospitalID, now.UnixNano()),
				RuleName:   rule.Name,
				HospitalID: b.HospitalID,
				BriefingID: b.ID,
				Severity:   sev,
				Value:      value,
				Message: fmt.Sprintf("[%s] %s fired for %s on %s: %s (%s risk, score %.2f)",
					sev, rule.Name, b.HospitalID, b.Date, rule.Condition, b.RiskLevel, b.RiskScore),
				FiredAt: now,
				State:   stateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Warn("alert fired",
				"rule", rule.Name,
				"hospital", b.HospitalID,
				"value", value,
				"severity", sev,
			)
			e.metrics.AlertFired(rule.Name)
			e.deliverFn(&alertCopy)
			continue
		}

		a, ok := e.active[key]
		if !ok || a.State != stateFiring {
			e.mu.Unlock()
			continue
		}
		resolved := now
		a.State = stateResolved
		a.ResolvedAt = &resolved
		delete(e.active, key)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		alertCopy := *a
		e.mu.Unlock()

		slog.Info("alert resolved",
			"rule", rule.Name,
			"hospital", b.HospitalID,
		)
		e.deliverFn(&alertCopy)
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Firing returns the number of currently firing alerts.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
