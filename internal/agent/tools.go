// Package agent contains the Tier 2 investigation loop, the tool registry it
// drives, and the Tier 1 digest generator.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/cluster"
	"github.com/rampager01/galaxy-agents/internal/llm/types"
	"github.com/rampager01/galaxy-agents/internal/lokiq"
	"github.com/rampager01/galaxy-agents/internal/vmetrics"
)

// Tool names exposed to the model. The set is fixed at build time.
const (
	ToolQueryMetrics     = "query_metrics"
	ToolQueryLogs        = "query_logs"
	ToolGetClusterStatus = "get_cluster_status"
	ToolSendAlert        = "send_alert"
)

// Truncation boundaries. Tool output fed back to the model and notification
// bodies handed to the sink are bounded independently; log previews are
// shorter still.
const (
	maxToolResultLen   = 2000
	maxNotificationLen = 3000
	logPreviewLen      = 200

	defaultLogLookback = 15 * time.Minute
	logQueryLimit      = 20
)

// MetricsQuerier executes one PromQL instant query.
type MetricsQuerier interface {
	Query(ctx context.Context, promql string) ([]vmetrics.Sample, error)
}

// LogQuerier executes one LogQL query over a lookback window.
type LogQuerier interface {
	Query(ctx context.Context, logql string, limit int, since time.Duration) ([]lokiq.Entry, error)
}

// StatusFetcher summarizes cluster health.
type StatusFetcher interface {
	Status(ctx context.Context) (*cluster.Summary, error)
}

// Notifier delivers one notification. It must not fail; false means "not
// delivered".
type Notifier interface {
	Notify(ctx context.Context, severity alert.Severity, title, message string) bool
}

// Registry declares the callable tool set and dispatches model-issued calls
// to the collaborators behind them.
type Registry struct {
	metrics  MetricsQuerier
	logs     LogQuerier
	cluster  StatusFetcher
	notifier Notifier
	log      *zap.Logger
}

// NewRegistry builds the registry. cluster may be nil when no Kubernetes API
// is reachable; the tool then reports its unavailability as result text.
func NewRegistry(metrics MetricsQuerier, logs LogQuerier, clusterStatus StatusFetcher, notifier Notifier, log *zap.Logger) *Registry {
	return &Registry{
		metrics:  metrics,
		logs:     logs,
		cluster:  clusterStatus,
		notifier: notifier,
		log:      log,
	}
}

// Descriptors returns the fixed tool set in its declared order.
func (r *Registry) Descriptors() []types.Tool {
	return []types.Tool{
		{
			Name: ToolQueryMetrics,
			Description: "Query VictoriaMetrics with a PromQL expression. Returns metric values. " +
				"Use this to check resource usage, pod status, node conditions, etc.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"promql": map[string]interface{}{
						"type":        "string",
						"description": "The PromQL query to execute",
					},
				},
				"required": []string{"promql"},
			},
		},
		{
			Name: ToolQueryLogs,
			Description: "Query Loki with a LogQL expression. Returns recent log lines. " +
				"Labels use OTel convention: k8s_namespace_name, k8s_pod_name, k8s_container_name.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"logql": map[string]interface{}{
						"type":        "string",
						"description": "The LogQL query to execute",
					},
					"since": map[string]interface{}{
						"type":        "string",
						"description": "How far back to look (e.g., '5m', '1h', '24h'). Default: 15m",
						"default":     "15m",
					},
				},
				"required": []string{"logql"},
			},
		},
		{
			Name: ToolGetClusterStatus,
			Description: "Get current cluster status: nodes, pods, deployments. " +
				"Returns a summary of what's healthy and what's not.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name: ToolSendAlert,
			Description: "Send an alert to Slack with your investigation findings. " +
				"Call this when you have determined the root cause and severity.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"severity": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"critical", "warning", "info", "resolved"},
						"description": "Alert severity level",
					},
					"title": map[string]interface{}{
						"type":        "string",
						"description": "Short alert title",
					},
					"message": map[string]interface{}{
						"type":        "string",
						"description": "Detailed alert message with root cause analysis",
					},
				},
				"required": []string{"severity", "title", "message"},
			},
		},
	}
}

// Invoke executes one tool call. It never fails: unknown tools, bad
// arguments, and collaborator errors all come back as descriptive result
// text so the conversation can continue and the model can react. The
// returned flag reports whether the text describes such a failure.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]interface{}) (string, bool) {
	switch name {
	case ToolQueryMetrics:
		promql, ok := stringArg(input, "promql")
		if !ok {
			return "Tool error: missing required argument 'promql'", true
		}
		samples, err := r.metrics.Query(ctx, promql)
		if err != nil {
			return fmt.Sprintf("Tool error: %v", err), true
		}
		return vmetrics.FormatSamples(samples), false

	case ToolQueryLogs:
		logql, ok := stringArg(input, "logql")
		if !ok {
			return "Tool error: missing required argument 'logql'", true
		}
		since := defaultLogLookback
		if raw, ok := stringArg(input, "since"); ok {
			if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
				since = parsed
			}
		}
		entries, err := r.logs.Query(ctx, logql, logQueryLimit, since)
		if err != nil {
			return fmt.Sprintf("Tool error: %v", err), true
		}
		return lokiq.FormatEntries(entries), false

	case ToolGetClusterStatus:
		if r.cluster == nil {
			return "Tool error: cluster API is not available", true
		}
		summary, err := r.cluster.Status(ctx)
		if err != nil {
			return fmt.Sprintf("Tool error: %v", err), true
		}
		return summary.Format(), false

	case ToolSendAlert:
		severity, _ := stringArg(input, "severity")
		title, _ := stringArg(input, "title")
		message, _ := stringArg(input, "message")
		sev := alert.Severity(severity)
		if !sev.Valid() {
			return fmt.Sprintf("Tool error: invalid severity %q", severity), true
		}
		if title == "" || message == "" {
			return "Tool error: title and message are required", true
		}
		if r.notifier.Notify(ctx, sev, title, truncate(message, maxNotificationLen)) {
			return "Alert sent to Slack successfully.", false
		}
		return "Tool error: alert could not be delivered", true

	default:
		return fmt.Sprintf("Unknown tool: %s", name), true
	}
}

// dispatch runs every tool call of one round concurrently and returns the
// results in call order, each truncated to the model boundary and correlated
// by the call's ID.
func (r *Registry) dispatch(ctx context.Context, calls []types.ToolCall) []types.ContentBlock {
	results := make([]types.ContentBlock, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call types.ToolCall) {
			defer wg.Done()
			r.log.Info("tool call",
				zap.String("tool", call.Name),
				zap.String("call_id", call.ID))
			output, isErr := r.Invoke(ctx, call.Name, call.Input)
			r.log.Info("tool result",
				zap.String("tool", call.Name),
				zap.Bool("is_error", isErr),
				zap.String("preview", truncate(output, logPreviewLen)))
			results[idx] = types.ToolResultBlock(call.ID, truncate(output, maxToolResultLen), isErr)
		}(i, call)
	}
	wg.Wait()

	return results
}

func stringArg(input map[string]interface{}, key string) (string, bool) {
	v, ok := input[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
