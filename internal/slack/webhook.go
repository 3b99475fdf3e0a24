// Package slack delivers notifications through a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/metrics"
)

const DefaultTimeout = 10 * time.Second

var severityEmoji = map[alert.Severity]string{
	alert.SeverityCritical: ":red_circle:",
	alert.SeverityWarning:  ":warning:",
	alert.SeverityInfo:     ":large_blue_circle:",
	alert.SeverityResolved: ":white_check_mark:",
}

var severityColor = map[alert.Severity]string{
	alert.SeverityCritical: "#dc3545",
	alert.SeverityWarning:  "#ffc107",
	alert.SeverityInfo:     "#0d6efd",
	alert.SeverityResolved: "#198754",
}

// Webhook sends Block Kit formatted alerts. A Webhook with an empty URL is
// valid: it logs and drops every notification.
type Webhook struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

// NewWebhook creates a notifier for the given webhook URL.
func NewWebhook(url string, log *zap.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        log,
	}
}

// Notify delivers one notification. It never fails: delivery problems are
// logged and reported as false.
func (w *Webhook) Notify(ctx context.Context, severity alert.Severity, title, message string) bool {
	if w.url == "" {
		w.log.Warn("no slack webhook configured, alert not sent",
			zap.String("severity", string(severity)), zap.String("title", title))
		metrics.NotificationsTotal.WithLabelValues(string(severity), "dropped").Inc()
		return false
	}

	payload := buildPayload(severity, title, message)
	body, err := json.Marshal(payload)
	if err != nil {
		w.log.Error("marshal slack payload", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues(string(severity), "dropped").Inc()
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.log.Error("create slack request", zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues(string(severity), "dropped").Inc()
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.Error("send slack alert", zap.String("title", title), zap.Error(err))
		metrics.NotificationsTotal.WithLabelValues(string(severity), "dropped").Inc()
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.log.Error("slack webhook rejected alert",
			zap.String("title", title), zap.Int("status", resp.StatusCode))
		metrics.NotificationsTotal.WithLabelValues(string(severity), "dropped").Inc()
		return false
	}

	w.log.Info("slack alert sent",
		zap.String("severity", string(severity)), zap.String("title", title))
	metrics.NotificationsTotal.WithLabelValues(string(severity), "sent").Inc()
	return true
}

func buildPayload(severity alert.Severity, title, message string) map[string]interface{} {
	emoji, ok := severityEmoji[severity]
	if !ok {
		emoji = ":question:"
	}
	color, ok := severityColor[severity]
	if !ok {
		color = "#6c757d"
	}

	return map[string]interface{}{
		"attachments": []interface{}{
			map[string]interface{}{
				"color": color,
				"blocks": []interface{}{
					map[string]interface{}{
						"type": "header",
						"text": map[string]interface{}{
							"type": "plain_text",
							"text": emoji + " " + title,
						},
					},
					map[string]interface{}{
						"type": "section",
						"text": map[string]interface{}{
							"type": "mrkdwn",
							"text": message,
						},
					},
					map[string]interface{}{
						"type": "context",
						"elements": []interface{}{
							map[string]interface{}{
								"type": "mrkdwn",
								"text": "*Severity:* " + string(severity) + " | *Source:* Galaxy Sentinel",
							},
						},
					},
				},
			},
		},
	}
}

// SetURL overrides the webhook URL. Used in tests.
func (w *Webhook) SetURL(url string) { w.url = url }
