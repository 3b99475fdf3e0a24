package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/config"
	"github.com/rampager01/galaxy-agents/internal/llm/types"
	"github.com/rampager01/galaxy-agents/internal/metrics"
	"github.com/rampager01/galaxy-agents/internal/probe"
	"github.com/rampager01/galaxy-agents/internal/vmetrics"
)

const digestMaxTokens = 500

const digestSystemPrompt = `You are Galaxy Sentinel, a monitoring AI for a Kubernetes homelab cluster called "Galaxy".
You receive a 24-hour health summary and produce a concise, human-friendly daily digest.

Rules:
- Be concise, aim for 5-10 lines
- Lead with overall status (healthy / degraded / critical)
- Highlight anything unusual or trending in the wrong direction
- Use Slack mrkdwn formatting (*bold*, _italic_, ` + "`code`" + `)
- End with one actionable recommendation if anything needs attention
- If everything looks good, say so briefly`

// ProbeFunc probes one hostname through the ingress.
type ProbeFunc func(ctx context.Context, host, ingressURL string) probe.Result

// DigestGenerator collects a fixed fact sheet about the cluster, asks the
// model for a summary, and posts it as the daily digest. No tools are
// exposed: the digest is a single completion over pre-collected data.
type DigestGenerator struct {
	provider Completer
	metrics  MetricsQuerier
	logs     LogQuerier
	notifier Notifier
	probeFn  ProbeFunc

	expectedNodes int
	endpoints     []config.Endpoint
	traefikURL    string
	log           *zap.Logger
}

// NewDigestGenerator wires the digest. probeFn may be nil; the default
// ingress probe is used then.
func NewDigestGenerator(provider Completer, metricsQ MetricsQuerier, logs LogQuerier, notifier Notifier, cfg *config.Config, log *zap.Logger) *DigestGenerator {
	return &DigestGenerator{
		provider:      provider,
		metrics:       metricsQ,
		logs:          logs,
		notifier:      notifier,
		probeFn:       probe.CheckViaIngress,
		expectedNodes: cfg.ExpectedNodeCount,
		endpoints:     cfg.ProbeEndpoints,
		traefikURL:    cfg.TraefikURL,
		log:           log,
	}
}

// SetProbeFunc overrides the endpoint probe. Used in tests.
func (g *DigestGenerator) SetProbeFunc(fn ProbeFunc) { g.probeFn = fn }

// Generate produces and delivers one digest. A failed fact collection never
// fails the digest; only a failed completion or delivery does, so the caller
// can count the attempt and retry.
func (g *DigestGenerator) Generate(ctx context.Context) error {
	summary := g.collectSummary(ctx)
	g.log.Info("collected 24h summary", zap.String("summary", summary))

	resp, err := g.provider.Complete(ctx, types.Request{
		System: digestSystemPrompt,
		Messages: []types.Message{
			types.UserText("Here is today's cluster health data:\n\n" + summary),
		},
		MaxTokens: digestMaxTokens,
	})
	if err != nil {
		metrics.DigestAttemptsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("digest completion: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		metrics.DigestAttemptsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("digest completion: empty response")
	}

	if !g.notifier.Notify(ctx, alert.SeverityInfo, "Daily Health Digest", truncate(text, maxNotificationLen)) {
		metrics.DigestAttemptsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("digest delivery failed")
	}
	metrics.DigestAttemptsTotal.WithLabelValues("ok").Inc()
	return nil
}

// collectSummary gathers the fixed fact sheet. Facts are collected
// concurrently and reported in declaration order; a failed fact becomes a
// "query failed" line instead of sinking the digest.
func (g *DigestGenerator) collectSummary(ctx context.Context) string {
	facts := []struct {
		name    string
		collect func(ctx context.Context) (string, error)
	}{
		{"NODES", g.factNodes},
		{"CPU_LOAD_15M", g.factCPULoad},
		{"MEMORY", g.factMemory},
		{"DISK", g.factDisk},
		{"PODS", g.factPods},
		{"ERRORS_24H", g.factErrors},
		{"ENDPOINTS", g.factEndpoints},
	}

	lines := make([]string, len(facts))
	var wg sync.WaitGroup
	for i, fact := range facts {
		wg.Add(1)
		go func(idx int, name string, collect func(ctx context.Context) (string, error)) {
			defer wg.Done()
			value, err := collect(ctx)
			if err != nil {
				lines[idx] = fmt.Sprintf("%s: query failed (%v)", name, err)
				return
			}
			lines[idx] = fmt.Sprintf("%s: %s", name, value)
		}(i, fact.name, fact.collect)
	}
	wg.Wait()

	return strings.Join(lines, "\n")
}

func (g *DigestGenerator) factNodes(ctx context.Context) (string, error) {
	samples, err := g.metrics.Query(ctx, `kube_node_status_condition{condition="Ready",status="true"}`)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d ready", len(samples), g.expectedNodes), nil
}

func (g *DigestGenerator) factCPULoad(ctx context.Context) (string, error) {
	samples, err := g.metrics.Query(ctx, `{__name__=~"system_cpu_load_average_15m|system\\.cpu\\.load_average\\.15m"}`)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(samples))
	for _, s := range samples {
		parts = append(parts, fmt.Sprintf("%s=%s", nodeLabel(s), s.Value))
	}
	return strings.Join(parts, ", "), nil
}

func (g *DigestGenerator) factMemory(ctx context.Context) (string, error) {
	samples, err := g.metrics.Query(ctx, `{__name__=~"system_memory_usage|system\\.memory\\.usage"}`)
	if err != nil {
		return "", err
	}
	return usedPercentByNode(samples), nil
}

func (g *DigestGenerator) factDisk(ctx context.Context) (string, error) {
	samples, err := g.metrics.Query(ctx, `{__name__=~"system_filesystem_usage|system\\.filesystem\\.usage",mountpoint="/"}`)
	if err != nil {
		return "", err
	}
	return usedPercentByNode(samples), nil
}

func (g *DigestGenerator) factPods(ctx context.Context) (string, error) {
	samples, err := g.metrics.Query(ctx, "kube_pod_status_phase")
	if err != nil {
		return "", err
	}
	counts := map[string]int{}
	for _, s := range samples {
		v, err := s.Float()
		if err != nil || v <= 0 {
			continue
		}
		phase := s.Labels["phase"]
		if phase == "" {
			phase = "unknown"
		}
		counts[phase] += int(v)
	}
	phases := make([]string, 0, len(counts))
	for phase := range counts {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	parts := make([]string, 0, len(phases))
	for _, phase := range phases {
		parts = append(parts, fmt.Sprintf("%s=%d", phase, counts[phase]))
	}
	return strings.Join(parts, ", "), nil
}

func (g *DigestGenerator) factErrors(ctx context.Context) (string, error) {
	entries, err := g.logs.Query(ctx, `{k8s_namespace_name=~".+"} |~ "error|Error|ERROR"`, 100, 24*time.Hour)
	if err != nil {
		return "", err
	}
	counts := map[string]int{}
	for _, e := range entries {
		ns := e.Labels["k8s_namespace_name"]
		if ns == "" {
			ns = "unknown"
		}
		counts[ns]++
	}
	if len(counts) == 0 {
		return "none", nil
	}
	namespaces := make([]string, 0, len(counts))
	for ns := range counts {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	parts := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		parts = append(parts, fmt.Sprintf("%s=%d", ns, counts[ns]))
	}
	return strings.Join(parts, ", "), nil
}

func (g *DigestGenerator) factEndpoints(ctx context.Context) (string, error) {
	parts := make([]string, 0, len(g.endpoints))
	for _, ep := range g.endpoints {
		result := g.probeFn(ctx, ep.Host, g.traefikURL)
		if result.Healthy {
			parts = append(parts, fmt.Sprintf("%s=ok(%dms)", ep.Name, result.ResponseTimeMS))
		} else {
			reason := result.Error
			if reason == "" {
				reason = fmt.Sprintf("%d", result.StatusCode)
			}
			parts = append(parts, fmt.Sprintf("%s=FAIL(%s)", ep.Name, reason))
		}
	}
	return strings.Join(parts, ", "), nil
}

// usedPercentByNode reduces used/free state samples into per-node usage
// percentages, sorted by node name.
func usedPercentByNode(samples []vmetrics.Sample) string {
	type usage struct{ used, free float64 }
	byNode := map[string]*usage{}
	for _, s := range samples {
		v, err := s.Float()
		if err != nil {
			continue
		}
		node := nodeLabel(s)
		u, ok := byNode[node]
		if !ok {
			u = &usage{}
			byNode[node] = u
		}
		switch s.Labels["state"] {
		case "used":
			u.used += v
		case "free":
			u.free += v
		}
	}

	nodes := make([]string, 0, len(byNode))
	for node := range byNode {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	parts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		u := byNode[node]
		total := u.used + u.free
		pct := 0.0
		if total > 0 {
			pct = u.used / total * 100
		}
		parts = append(parts, fmt.Sprintf("%s=%.0f%%", node, pct))
	}
	return strings.Join(parts, ", ")
}

func nodeLabel(s vmetrics.Sample) string {
	if node := s.Labels["k8s_node_name"]; node != "" {
		return node
	}
	if node := s.Labels["node"]; node != "" {
		return node
	}
	return "?"
}
