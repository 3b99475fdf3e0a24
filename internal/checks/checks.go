// Package checks implements the Tier 0 threshold checks. No model is
// involved: each check queries one collaborator and compares against fixed
// thresholds.
package checks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/config"
	"github.com/rampager01/galaxy-agents/internal/dnscheck"
	"github.com/rampager01/galaxy-agents/internal/lokiq"
	"github.com/rampager01/galaxy-agents/internal/metrics"
	"github.com/rampager01/galaxy-agents/internal/probe"
	"github.com/rampager01/galaxy-agents/internal/vmetrics"
)

// Load thresholds. The control plane node gets a lower warning threshold;
// critical is always double the warning.
const (
	controlPlaneLoadWarning = 4.0
	workerLoadWarning       = 8.0

	memoryWarningPct  = 85.0
	memoryCriticalPct = 95.0

	diskWarningPct  = 80.0
	diskCriticalPct = 90.0

	logCheckLookback = 5 * time.Minute
	logCheckLimit    = 5
	logLineMax       = 150
)

// MetricsQuerier executes one PromQL instant query.
type MetricsQuerier interface {
	Query(ctx context.Context, promql string) ([]vmetrics.Sample, error)
}

// LogQuerier executes one LogQL query over a lookback window.
type LogQuerier interface {
	Query(ctx context.Context, logql string, limit int, since time.Duration) ([]lokiq.Entry, error)
}

// Deps carries the collaborators and configuration every check draws from.
// The probe and DNS fields are function values so tests can stub them.
type Deps struct {
	Cfg     *config.Config
	Metrics MetricsQuerier
	Logs    LogQuerier

	ProbeEndpoint   func(ctx context.Context, url string) probe.Result
	ProbeViaIngress func(ctx context.Context, host, ingressURL string) probe.Result
	DNSLookup       func(ctx context.Context, query, server, expected string) dnscheck.Result

	Log *zap.Logger
}

// NewDeps builds Deps with the default probe and DNS implementations.
func NewDeps(cfg *config.Config, metricsQ MetricsQuerier, logs LogQuerier, log *zap.Logger) *Deps {
	return &Deps{
		Cfg:             cfg,
		Metrics:         metricsQ,
		Logs:            logs,
		ProbeEndpoint:   probe.Check,
		ProbeViaIngress: probe.CheckViaIngress,
		DNSLookup:       dnscheck.Lookup,
		Log:             log,
	}
}

// Check is one named Tier 0 check. Run returns zero or more alerts; an error
// means the check itself could not execute.
type Check struct {
	Name string
	Run  func(ctx context.Context, deps *Deps) ([]alert.Alert, error)
}

// All returns the full check set in its fixed order.
func All() []Check {
	return []Check{
		{"node_ready", checkNodeReady},
		{"cpu_load", checkCPULoad},
		{"memory", checkMemory},
		{"disk", checkDisk},
		{"crashlooping", checkCrashLooping},
		{"stuck_pods", checkStuckPods},
		{"endpoints", checkEndpoints},
		{"internal_health", checkInternalHealth},
		{"dns_resolution", checkDNSResolution},
		{"oom_kills", checkOOMKills},
		{"flux_errors", checkFluxErrors},
		{"db_fatal", checkDBFatal},
	}
}

// RunAll executes every check concurrently and returns the combined alerts
// in check-declaration order. A failing check never sinks the cycle: its
// failure becomes a synthetic warning alert so the operator learns the
// monitoring itself is degraded.
func RunAll(ctx context.Context, deps *Deps, checkSet []Check) []alert.Alert {
	results := make([][]alert.Alert, len(checkSet))

	var wg sync.WaitGroup
	for i, check := range checkSet {
		wg.Add(1)
		go func(idx int, check Check) {
			defer wg.Done()
			alerts, err := check.Run(ctx, deps)
			if err != nil {
				deps.Log.Error("check failed", zap.String("check", check.Name), zap.Error(err))
				metrics.CheckRunsTotal.WithLabelValues(check.Name, "error").Inc()
				results[idx] = []alert.Alert{{
					CheckName: "Check Error: " + check.Name,
					Severity:  alert.SeverityWarning,
					Message:   fmt.Sprintf("Check %s failed: %v", check.Name, err),
				}}
				return
			}
			status := "ok"
			if len(alerts) > 0 {
				status = "alerting"
			}
			metrics.CheckRunsTotal.WithLabelValues(check.Name, status).Inc()
			results[idx] = alerts
		}(i, check)
	}
	wg.Wait()

	var combined []alert.Alert
	for _, alerts := range results {
		for _, a := range alerts {
			metrics.AlertsTotal.WithLabelValues(a.CheckName, string(a.Severity)).Inc()
		}
		combined = append(combined, alerts...)
	}
	return combined
}

func checkNodeReady(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	samples, err := deps.Metrics.Query(ctx, `kube_node_status_condition{condition="Ready",status="true"}`)
	if err != nil {
		return nil, err
	}
	if len(samples) >= deps.Cfg.ExpectedNodeCount {
		return nil, nil
	}

	ready := map[string]bool{}
	for _, s := range samples {
		ready[s.Labels["node"]] = true
	}
	var missing []string
	for _, node := range deps.Cfg.ClusterNodes {
		if !ready[node] {
			missing = append(missing, node)
		}
	}
	missingText := strings.Join(missing, ", ")
	if missingText == "" {
		missingText = "unknown"
	}

	return []alert.Alert{{
		CheckName: "Node Down",
		Severity:  alert.SeverityCritical,
		Message: fmt.Sprintf("Only %d/%d nodes ready. Missing/not-ready: %s",
			len(samples), deps.Cfg.ExpectedNodeCount, missingText),
	}}, nil
}

func checkCPULoad(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	samples, err := deps.Metrics.Query(ctx, `{__name__=~"system_cpu_load_average_15m|system\\.cpu\\.load_average\\.15m"}`)
	if err != nil {
		return nil, err
	}

	var alerts []alert.Alert
	for _, s := range samples {
		node := nodeLabel(s)
		load, err := s.Float()
		if err != nil {
			continue
		}

		warning := workerLoadWarning
		if strings.Contains(node, "mercury") {
			warning = controlPlaneLoadWarning
		}
		critical := warning * 2

		switch {
		case load > critical:
			alerts = append(alerts, alert.Alert{
				CheckName: "CPU Load Critical",
				Severity:  alert.SeverityCritical,
				Message:   fmt.Sprintf("%s: 15m load average %.1f (threshold: %.1f)", node, load, critical),
			})
		case load > warning:
			alerts = append(alerts, alert.Alert{
				CheckName: "CPU Load High",
				Severity:  alert.SeverityWarning,
				Message:   fmt.Sprintf("%s: 15m load average %.1f (threshold: %.1f)", node, load, warning),
			})
		}
	}
	return alerts, nil
}

func checkMemory(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	samples, err := deps.Metrics.Query(ctx, `{__name__=~"system_memory_usage|system\\.memory\\.usage"}`)
	if err != nil {
		return nil, err
	}
	var alerts []alert.Alert
	for node, pct := range usedPercent(samples, "") {
		switch {
		case pct > memoryCriticalPct:
			alerts = append(alerts, alert.Alert{
				CheckName: "Memory Critical",
				Severity:  alert.SeverityCritical,
				Message:   fmt.Sprintf("%s: memory usage %.0f%%", node, pct),
			})
		case pct > memoryWarningPct:
			alerts = append(alerts, alert.Alert{
				CheckName: "Memory High",
				Severity:  alert.SeverityWarning,
				Message:   fmt.Sprintf("%s: memory usage %.0f%%", node, pct),
			})
		}
	}
	return alerts, nil
}

func checkDisk(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	samples, err := deps.Metrics.Query(ctx, `{__name__=~"system_filesystem_usage|system\\.filesystem\\.usage"}`)
	if err != nil {
		return nil, err
	}
	var alerts []alert.Alert
	for node, pct := range usedPercent(samples, "/") {
		switch {
		case pct > diskCriticalPct:
			alerts = append(alerts, alert.Alert{
				CheckName: "Disk Critical",
				Severity:  alert.SeverityCritical,
				Message:   fmt.Sprintf("%s: disk usage %.0f%% on /", node, pct),
			})
		case pct > diskWarningPct:
			alerts = append(alerts, alert.Alert{
				CheckName: "Disk High",
				Severity:  alert.SeverityWarning,
				Message:   fmt.Sprintf("%s: disk usage %.0f%% on /", node, pct),
			})
		}
	}
	return alerts, nil
}

func checkCrashLooping(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	samples, err := deps.Metrics.Query(ctx, "increase(kube_pod_container_status_restarts_total[1h]) > 5")
	if err != nil {
		return nil, err
	}
	var alerts []alert.Alert
	for _, s := range samples {
		restarts, err := s.Float()
		if err != nil {
			continue
		}
		alerts = append(alerts, alert.Alert{
			CheckName: "Pod CrashLooping",
			Severity:  alert.SeverityWarning,
			Message: fmt.Sprintf("%s/%s: %.0f restarts in the last hour",
				labelOr(s, "namespace", "unknown"), labelOr(s, "pod", "unknown"), restarts),
		})
	}
	return alerts, nil
}

func checkStuckPods(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	samples, err := deps.Metrics.Query(ctx, `kube_pod_status_phase{phase=~"Pending|Failed|Unknown"} == 1`)
	if err != nil {
		return nil, err
	}
	var alerts []alert.Alert
	for _, s := range samples {
		alerts = append(alerts, alert.Alert{
			CheckName: "Stuck Pod",
			Severity:  alert.SeverityWarning,
			Message: fmt.Sprintf("%s/%s: stuck in %s",
				labelOr(s, "namespace", "unknown"), labelOr(s, "pod", "unknown"),
				labelOr(s, "phase", "unknown")),
		})
	}
	return alerts, nil
}

func checkEndpoints(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	var alerts []alert.Alert
	for _, ep := range deps.Cfg.ProbeEndpoints {
		result := deps.ProbeViaIngress(ctx, ep.Host, deps.Cfg.TraefikURL)
		if result.Healthy {
			continue
		}
		detail := result.Error
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", result.StatusCode)
		}
		alerts = append(alerts, alert.Alert{
			CheckName: ep.Name + " Unreachable",
			Severity:  ep.Severity,
			Message:   fmt.Sprintf("%s: %s", result.URL, detail),
		})
	}
	return alerts, nil
}

func checkInternalHealth(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	var alerts []alert.Alert
	for _, svc := range deps.Cfg.InternalHealthChecks {
		result := deps.ProbeEndpoint(ctx, svc.URL)
		if result.Healthy {
			continue
		}
		detail := result.Error
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", result.StatusCode)
		}
		alerts = append(alerts, alert.Alert{
			CheckName: svc.Name + " Unhealthy",
			Severity:  svc.Severity,
			Message:   fmt.Sprintf("%s: %s", svc.URL, detail),
		})
	}
	return alerts, nil
}

func checkDNSResolution(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	var alerts []alert.Alert
	for _, check := range deps.Cfg.DNSChecks {
		result := deps.DNSLookup(ctx, check.Query, deps.Cfg.DNSServer, check.Expected)
		if !result.Resolved {
			alerts = append(alerts, alert.Alert{
				CheckName: "DNS " + check.Name + " Failed",
				Severity:  check.Severity,
				Message: fmt.Sprintf("Cannot resolve %s via %s: %s",
					check.Query, deps.Cfg.DNSServer, result.Error),
			})
			continue
		}
		if !result.MatchesExpected {
			alerts = append(alerts, alert.Alert{
				CheckName: "DNS " + check.Name + " Mismatch",
				Severity:  check.Severity,
				Message: fmt.Sprintf("%s resolved to %v, expected %s",
					check.Query, result.Addresses, check.Expected),
			})
		}
	}
	return alerts, nil
}

func checkOOMKills(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	entries, err := deps.Logs.Query(ctx, `{k8s_namespace_name=~".+"} |~ "OOMKilled|Out of memory"`, logCheckLimit, logCheckLookback)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var pods []string
	for _, e := range entries {
		pods = append(pods, fmt.Sprintf("  %s/%s",
			entryLabel(e, "k8s_namespace_name"), entryLabel(e, "k8s_pod_name")))
	}
	return []alert.Alert{{
		CheckName: "OOM Kill Detected",
		Severity:  alert.SeverityWarning,
		Message: fmt.Sprintf("%d OOM event(s) in the last 5 minutes:\n%s",
			len(entries), strings.Join(pods, "\n")),
	}}, nil
}

func checkFluxErrors(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	entries, err := deps.Logs.Query(ctx, `{k8s_namespace_name="flux-system"} |~ "error|reconciliation failed"`, logCheckLimit, logCheckLookback)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return []alert.Alert{{
		CheckName: "Flux Errors",
		Severity:  alert.SeverityWarning,
		Message: fmt.Sprintf("%d Flux error(s) in the last 5 minutes:\n%s",
			len(entries), logPreview(entries, 3)),
	}}, nil
}

func checkDBFatal(ctx context.Context, deps *Deps) ([]alert.Alert, error) {
	entries, err := deps.Logs.Query(ctx, `{k8s_namespace_name="database"} |~ "FATAL|PANIC"`, logCheckLimit, logCheckLookback)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return []alert.Alert{{
		CheckName: "Database Fatal Error",
		Severity:  alert.SeverityCritical,
		Message: fmt.Sprintf("%d FATAL/PANIC error(s) in database:\n%s",
			len(entries), logPreview(entries, 3)),
	}}, nil
}

// usedPercent reduces used/free state samples into per-node usage
// percentages. A non-empty mountpoint restricts the samples to it.
func usedPercent(samples []vmetrics.Sample, mountpoint string) map[string]float64 {
	type usage struct{ used, free float64 }
	byNode := map[string]*usage{}
	for _, s := range samples {
		if mountpoint != "" && s.Labels["mountpoint"] != mountpoint {
			continue
		}
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

	pcts := map[string]float64{}
	for node, u := range byNode {
		total := u.used + u.free
		if total == 0 {
			continue
		}
		pcts[node] = u.used / total * 100
	}
	return pcts
}

func logPreview(entries []lokiq.Entry, max int) string {
	if len(entries) > max {
		entries = entries[:max]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := e.Line
		if len(line) > logLineMax {
			line = line[:logLineMax]
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func nodeLabel(s vmetrics.Sample) string {
	if node := s.Labels["k8s_node_name"]; node != "" {
		return node
	}
	return labelOr(s, "node", "unknown")
}

func labelOr(s vmetrics.Sample, key, fallback string) string {
	if v := s.Labels[key]; v != "" {
		return v
	}
	return fallback
}

func entryLabel(e lokiq.Entry, key string) string {
	if v := e.Labels[key]; v != "" {
		return v
	}
	return "?"
}
