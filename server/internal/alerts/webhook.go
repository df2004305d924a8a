package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/surgecast/surgecast/server/internal/config"
	"github.com/surgecast/surgecast/server/internal/retry"
)

const (
	webhookAttempts = 3
	webhookDeadline = 30 * time.Second
)

// Webhook event names used by the generic http target.
const (
	EventAlertFired    = "alert.fired"
	EventAlertResolved = "alert.resolved"
)

// webhookEvent is the body posted to "http" targets.
type webhookEvent struct {
	Event  string    `json:"event"`
	SentAt time.Time `json:"sent_at"`
	Alert  *Alert    `json:"alert"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer,omitempty"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []teamsFact `json:"facts"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

// errPermanent marks a webhook answer that retrying cannot fix.
var errPermanent = errors.New("permanent webhook failure")

// deliver posts a to every configured target. Failures are logged and
// counted, never returned: alerting must not hold up briefings.
func (e *Engine) deliver(a *Alert) {
	e.mu.Lock()
	targets := e.webhooks
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), webhookDeadline)
	defer cancel()

	for _, wh := range targets {
		url := wh.URL()
		if url == "" {
			slog.Debug("alerts: webhook url unset, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}
		body, err := renderWebhook(wh.Type, a, e.now())
		if err != nil {
			slog.Warn("alerts: skipping webhook", "type", wh.Type, "err", err)
			continue
		}
		err = e.postWithRetry(ctx, url, body)
		e.metrics.WebhookDelivered(wh.Type, err)
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "hospital_id", a.HospitalID, "state", a.State, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "hospital_id", a.HospitalID, "state", a.State)
	}
}

// renderWebhook encodes a for one target type.
func renderWebhook(kind string, a *Alert, now time.Time) ([]byte, error) {
	var v interface{}
	switch kind {
	case config.WebhookSlack:
		v = slackPayload(a)
	case config.WebhookTeams:
		v = teamsPayload(a)
	case config.WebhookHTTP:
		event := EventAlertFired
		if a.State == stateResolved {
			event = EventAlertResolved
		}
		v = webhookEvent{Event: event, SentAt: now.UTC(), Alert: a}
	default:
		return nil, fmt.Errorf("unknown webhook type %q", kind)
	}
	return json.Marshal(v)
}

func slackPayload(a *Alert) slackMessage {
	text := fmt.Sprintf("*%s %s* at %s: %s", severityLabel(a.Severity), a.RuleName, a.HospitalID, a.Message)
	if a.State == stateResolved {
		text = fmt.Sprintf("*[RESOLVED] %s* at %s", a.RuleName, a.HospitalID)
	}
	return slackMessage{
		Text: text,
		Attachments: []slackAttachment{{
			Color:  "#" + themeColor(a),
			Fields: alertFacts(a, func(name, value string) slackField { return slackField{Title: name, Value: value, Short: true} }),
			Footer: "SurgeCast",
		}},
	}
}

func teamsPayload(a *Alert) teamsCard {
	title := fmt.Sprintf("SurgeCast alert: %s (%s)", a.RuleName, a.HospitalID)
	if a.State == stateResolved {
		title = fmt.Sprintf("SurgeCast resolved: %s (%s)", a.RuleName, a.HospitalID)
	}
	return teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: themeColor(a),
		Summary:    a.RuleName,
		Title:      title,
		Sections: []teamsSection{{
			ActivityTitle: a.Message,
			Facts:         alertFacts(a, func(name, value string) teamsFact { return teamsFact{Name: name, Value: value} }),
		}},
	}
}

// alertFacts lists the briefing context shown in chat cards.
func alertFacts[T any](a *Alert, mk func(name, value string) T) []T {
	facts := []T{
		mk("Hospital", a.HospitalID),
		mk("Severity", a.Severity),
		mk("Value", fmt.Sprintf("%.2f", a.Value)),
		mk("Briefing", a.BriefingID),
		mk("Fired at", a.FiredAt.UTC().Format(time.RFC3339)),
	}
	if a.ResolvedAt != nil {
		facts = append(facts, mk("Resolved at", a.ResolvedAt.UTC().Format(time.RFC3339)))
	}
	return facts
}

// postWithRetry posts body, retrying network errors, 429 and 5xx.
func (e *Engine) postWithRetry(ctx context.Context, url string, body []byte) error {
	bo := retry.New(e.retryBase, 8*e.retryBase)
	var err error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if err = e.post(ctx, url, body); err == nil || errors.Is(err, errPermanent) {
			return err
		}
		if attempt == webhookAttempts {
			break
		}
		if serr := retry.Sleep(ctx, bo.Next()); serr != nil {
			return fmt.Errorf("%w (gave up: %v)", err, serr)
		}
	}
	return fmt.Errorf("after %d attempts: %w", webhookAttempts, err)
}

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "surgecast-alerts")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	default:
		return fmt.Errorf("%w: webhook returned HTTP %d", errPermanent, resp.StatusCode)
	}
}

func severityLabel(s string) string {
	switch s {
	case severityCritical:
		return "[CRITICAL]"
	case severityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func themeColor(a *Alert) string {
	if a.State == stateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case severityCritical:
		return "FF4F6A"
	case severityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
