package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rampager01/galaxy-agents/internal/alert"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.CheckIntervalSeconds)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval())
	assert.Equal(t, 8, cfg.DigestHour)
	assert.Equal(t, 4, cfg.ExpectedNodeCount)
	assert.Equal(t, []string{"mercury-server", "venus", "mars", "earth"}, cfg.ClusterNodes)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)

	// Structured check targets get filled in.
	require.Len(t, cfg.ProbeEndpoints, 2)
	assert.Equal(t, "n8n", cfg.ProbeEndpoints[0].Name)
	assert.Equal(t, alert.SeverityCritical, cfg.ProbeEndpoints[0].Severity)
	require.NotEmpty(t, cfg.DNSChecks)
	require.NotEmpty(t, cfg.InternalHealthChecks)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
check_interval_seconds: 60
digest_hour: 6
llm:
  provider: ollama
  ollama_url: http://localhost:11434
probe_endpoints:
  - name: app
    host: app.example.test
    severity: warning
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.CheckIntervalSeconds)
	assert.Equal(t, 6, cfg.DigestHour)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.True(t, cfg.AIEnabled())

	require.Len(t, cfg.ProbeEndpoints, 1)
	assert.Equal(t, "app", cfg.ProbeEndpoints[0].Name)
	assert.Equal(t, alert.SeverityWarning, cfg.ProbeEndpoints[0].Severity)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/T/B/X")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("VICTORIA_METRICS_URL", "http://vm.test:8428")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.slack.test/T/B/X", cfg.SlackWebhookURL)
	assert.Equal(t, "sk-test", cfg.LLM.AnthropicAPIKey)
	assert.Equal(t, "http://vm.test:8428", cfg.VictoriaMetricsURL)
	assert.True(t, cfg.AIEnabled())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.DigestHour = 24
	assert.Error(t, cfg.Validate())

	cfg.DigestHour = 8
	cfg.CheckIntervalSeconds = 0
	assert.Error(t, cfg.Validate())

	cfg.CheckIntervalSeconds = 300
	cfg.LLM.Provider = "bard"
	assert.Error(t, cfg.Validate())
}

func TestAIEnabledPerProvider(t *testing.T) {
	cfg := &Config{}

	cfg.LLM.Provider = "anthropic"
	assert.False(t, cfg.AIEnabled())
	cfg.LLM.AnthropicAPIKey = "sk-test"
	assert.True(t, cfg.AIEnabled())

	cfg.LLM.Provider = "openai"
	assert.False(t, cfg.AIEnabled())
	cfg.LLM.OpenAIAPIKey = "sk-test"
	assert.True(t, cfg.AIEnabled())

	cfg.LLM.Provider = "ollama"
	assert.False(t, cfg.AIEnabled())
	cfg.LLM.OllamaURL = "http://localhost:11434"
	assert.True(t, cfg.AIEnabled())
}
