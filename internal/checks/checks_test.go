package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/config"
	"github.com/rampager01/galaxy-agents/internal/dnscheck"
	"github.com/rampager01/galaxy-agents/internal/lokiq"
	"github.com/rampager01/galaxy-agents/internal/probe"
	"github.com/rampager01/galaxy-agents/internal/vmetrics"
)

type stubMetrics struct {
	byQuery map[string][]vmetrics.Sample
	err     error
}

func (m *stubMetrics) Query(_ context.Context, promql string) ([]vmetrics.Sample, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byQuery[promql], nil
}

type stubLogs struct {
	entries []lokiq.Entry
	err     error
}

func (l *stubLogs) Query(_ context.Context, _ string, _ int, _ time.Duration) ([]lokiq.Entry, error) {
	return l.entries, l.err
}

func testDeps(metrics *stubMetrics, logs *stubLogs) *Deps {
	cfg := &config.Config{
		ClusterNodes:      []string{"mercury-server", "venus", "mars", "earth"},
		ExpectedNodeCount: 4,
		DNSServer:         "10.0.0.53",
		TraefikURL:        "https://traefik.test",
	}
	return &Deps{
		Cfg:     cfg,
		Metrics: metrics,
		Logs:    logs,
		ProbeEndpoint: func(_ context.Context, url string) probe.Result {
			return probe.Result{URL: url, Healthy: true, StatusCode: 200}
		},
		ProbeViaIngress: func(_ context.Context, host, _ string) probe.Result {
			return probe.Result{URL: host, Healthy: true, StatusCode: 200}
		},
		DNSLookup: func(_ context.Context, query, server, expected string) dnscheck.Result {
			return dnscheck.Result{Query: query, Server: server, Resolved: true, MatchesExpected: true}
		},
		Log: zap.NewNop(),
	}
}

func sample(value string, labels map[string]string) vmetrics.Sample {
	return vmetrics.Sample{Labels: labels, Value: value}
}

func TestNodeReadyAlertsOnMissingNodes(t *testing.T) {
	deps := testDeps(&stubMetrics{byQuery: map[string][]vmetrics.Sample{
		`kube_node_status_condition{condition="Ready",status="true"}`: {
			sample("1", map[string]string{"node": "mercury-server"}),
			sample("1", map[string]string{"node": "venus"}),
			sample("1", map[string]string{"node": "mars"}),
		},
	}}, &stubLogs{})

	alerts, err := checkNodeReady(context.Background(), deps)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Node Down", alerts[0].CheckName)
	assert.Equal(t, alert.SeverityCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "Only 3/4 nodes ready")
	assert.Contains(t, alerts[0].Message, "earth")
}

func TestCPULoadThresholdsPerNode(t *testing.T) {
	deps := testDeps(&stubMetrics{byQuery: map[string][]vmetrics.Sample{
		`{__name__=~"system_cpu_load_average_15m|system\\.cpu\\.load_average\\.15m"}`: {
			// Control plane: warning above 4, critical above 8.
			sample("5.2", map[string]string{"k8s_node_name": "mercury-server"}),
			// Worker: 5.2 is fine, 9.0 is a warning, 17.0 is critical.
			sample("5.2", map[string]string{"k8s_node_name": "venus"}),
			sample("9.0", map[string]string{"k8s_node_name": "mars"}),
			sample("17.0", map[string]string{"k8s_node_name": "earth"}),
		},
	}}, &stubLogs{})

	alerts, err := checkCPULoad(context.Background(), deps)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	byNode := map[string]alert.Alert{}
	for _, a := range alerts {
		byNode[a.Message[:strings.Index(a.Message, ":")]] = a
	}
	assert.Equal(t, "CPU Load High", byNode["mercury-server"].CheckName)
	assert.Equal(t, "CPU Load High", byNode["mars"].CheckName)
	assert.Equal(t, "CPU Load Critical", byNode["earth"].CheckName)
	assert.Equal(t, alert.SeverityCritical, byNode["earth"].Severity)

	// Thresholds render with one decimal even when whole numbers.
	assert.Contains(t, byNode["mars"].Message, "(threshold: 8.0)")
	assert.Contains(t, byNode["earth"].Message, "(threshold: 16.0)")
}

func TestMemoryGroupsUsedAndFreeStates(t *testing.T) {
	deps := testDeps(&stubMetrics{byQuery: map[string][]vmetrics.Sample{
		`{__name__=~"system_memory_usage|system\\.memory\\.usage"}`: {
			sample("90", map[string]string{"k8s_node_name": "venus", "state": "used"}),
			sample("10", map[string]string{"k8s_node_name": "venus", "state": "free"}),
			sample("50", map[string]string{"k8s_node_name": "mars", "state": "used"}),
			sample("50", map[string]string{"k8s_node_name": "mars", "state": "free"}),
		},
	}}, &stubLogs{})

	alerts, err := checkMemory(context.Background(), deps)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Memory High", alerts[0].CheckName)
	assert.Contains(t, alerts[0].Message, "venus: memory usage 90%")
}

func TestDiskOnlyConsidersRootMount(t *testing.T) {
	deps := testDeps(&stubMetrics{byQuery: map[string][]vmetrics.Sample{
		`{__name__=~"system_filesystem_usage|system\\.filesystem\\.usage"}`: {
			sample("95", map[string]string{"k8s_node_name": "venus", "state": "used", "mountpoint": "/var/data"}),
			sample("5", map[string]string{"k8s_node_name": "venus", "state": "free", "mountpoint": "/var/data"}),
			sample("50", map[string]string{"k8s_node_name": "venus", "state": "used", "mountpoint": "/"}),
			sample("50", map[string]string{"k8s_node_name": "venus", "state": "free", "mountpoint": "/"}),
		},
	}}, &stubLogs{})

	alerts, err := checkDisk(context.Background(), deps)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestDNSMismatchAlert(t *testing.T) {
	deps := testDeps(&stubMetrics{}, &stubLogs{})
	deps.Cfg.DNSChecks = []config.DNSCheck{
		{Name: "internal-dns", Query: "workflows.test", Expected: "10.0.0.1", Severity: alert.SeverityCritical},
	}
	deps.DNSLookup = func(_ context.Context, query, server, expected string) dnscheck.Result {
		return dnscheck.Result{
			Query: query, Server: server, Resolved: true,
			Addresses: []string{"10.0.0.9"}, MatchesExpected: false,
		}
	}

	alerts, err := checkDNSResolution(context.Background(), deps)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "DNS internal-dns Mismatch", alerts[0].CheckName)
	assert.Contains(t, alerts[0].Message, "expected 10.0.0.1")
}

func TestLogChecksAlertOnEntries(t *testing.T) {
	deps := testDeps(&stubMetrics{}, &stubLogs{entries: []lokiq.Entry{
		{Labels: map[string]string{"k8s_namespace_name": "database", "k8s_pod_name": "pg-0"}, Line: "FATAL: out of connections"},
	}})

	alerts, err := checkDBFatal(context.Background(), deps)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Database Fatal Error", alerts[0].CheckName)
	assert.Equal(t, alert.SeverityCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "FATAL: out of connections")
}

func TestRunAllIsolatesFailingCheck(t *testing.T) {
	deps := testDeps(&stubMetrics{}, &stubLogs{})
	checkSet := []Check{
		{"broken", func(_ context.Context, _ *Deps) ([]alert.Alert, error) {
			return nil, errors.New("collaborator unreachable")
		}},
		{"healthy", func(_ context.Context, _ *Deps) ([]alert.Alert, error) {
			return []alert.Alert{{CheckName: "Stuck Pod", Severity: alert.SeverityWarning, Message: "x/y: stuck in Pending"}}, nil
		}},
	}

	alerts := RunAll(context.Background(), deps, checkSet)
	require.Len(t, alerts, 2)
	// Declaration order is preserved even though checks run concurrently.
	assert.Equal(t, "Check Error: broken", alerts[0].CheckName)
	assert.Equal(t, alert.SeverityWarning, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "collaborator unreachable")
	assert.Equal(t, "Stuck Pod", alerts[1].CheckName)
}

func TestAllChecksQuietOnHealthyCluster(t *testing.T) {
	deps := testDeps(&stubMetrics{byQuery: map[string][]vmetrics.Sample{
		`kube_node_status_condition{condition="Ready",status="true"}`: {
			sample("1", map[string]string{"node": "mercury-server"}),
			sample("1", map[string]string{"node": "venus"}),
			sample("1", map[string]string{"node": "mars"}),
			sample("1", map[string]string{"node": "earth"}),
		},
	}}, &stubLogs{})

	alerts := RunAll(context.Background(), deps, All())
	assert.Empty(t, alerts)
}
