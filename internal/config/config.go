// Package config loads the sentinel configuration from an optional YAML file
// and environment variables.
//
// Sources, highest priority first:
//  1. Well-known environment variables (ANTHROPIC_API_KEY, SLACK_WEBHOOK_URL, ...)
//  2. SENTINEL_* prefixed environment variables
//  3. YAML config file (optional)
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rampager01/galaxy-agents/internal/alert"
)

// Endpoint is an external HTTP(S) endpoint probed through the Traefik ingress.
type Endpoint struct {
	Name     string         `mapstructure:"name"`
	Host     string         `mapstructure:"host"`
	Severity alert.Severity `mapstructure:"severity"`
}

// DNSCheck is one resolution probe against the cluster DNS server.
type DNSCheck struct {
	Name     string         `mapstructure:"name"`
	Query    string         `mapstructure:"query"`
	Expected string         `mapstructure:"expected"`
	Severity alert.Severity `mapstructure:"severity"`
}

// HealthCheck is one internal service health endpoint.
type HealthCheck struct {
	Name     string         `mapstructure:"name"`
	URL      string         `mapstructure:"url"`
	Severity alert.Severity `mapstructure:"severity"`
}

// LLMConfig selects and configures the completion backend.
type LLMConfig struct {
	Provider        string `mapstructure:"provider"` // anthropic | openai | ollama
	Model           string `mapstructure:"model"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OllamaURL       string `mapstructure:"ollama_url"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`  // debug | info | warn | error
	Format   string `mapstructure:"format"` // json | console
	FilePath string `mapstructure:"file_path"`
}

// Config contains all sentinel settings.
type Config struct {
	// Cluster endpoints (in-cluster defaults).
	VictoriaMetricsURL string `mapstructure:"victoria_metrics_url"`
	LokiURL            string `mapstructure:"loki_url"`
	DNSServer          string `mapstructure:"dns_server"`
	TraefikURL         string `mapstructure:"traefik_url"`

	SlackWebhookURL string `mapstructure:"slack_webhook_url"`

	LLM     LLMConfig     `mapstructure:"llm"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Scheduling.
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds"`
	DigestHour           int `mapstructure:"digest_hour"`

	// Check targets.
	ProbeEndpoints       []Endpoint    `mapstructure:"probe_endpoints"`
	DNSChecks            []DNSCheck    `mapstructure:"dns_checks"`
	InternalHealthChecks []HealthCheck `mapstructure:"internal_health_checks"`
	ClusterNodes         []string      `mapstructure:"cluster_nodes"`
	ExpectedNodeCount    int           `mapstructure:"expected_node_count"`

	// Agent persona prompt, optional. Falls back to a built-in default.
	SystemPromptPath string `mapstructure:"system_prompt_path"`

	// Digest-state database. Empty disables persistence.
	StatePath string `mapstructure:"state_path"`

	// Prometheus /metrics + /healthz listener. Empty disables the listener.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// Kubeconfig path for out-of-cluster runs. Empty means in-cluster.
	KubeconfigPath string `mapstructure:"kubeconfig_path"`
}

// Load reads configuration from the given YAML file (may be empty for
// env/defaults only) and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyCheckTargetDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	if c.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("check_interval_seconds must be positive, got %d", c.CheckIntervalSeconds)
	}
	if c.DigestHour < 0 || c.DigestHour > 23 {
		return fmt.Errorf("digest_hour must be in [0,23], got %d", c.DigestHour)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	for _, ep := range c.ProbeEndpoints {
		if !ep.Severity.Valid() {
			return fmt.Errorf("probe endpoint %q: invalid severity %q", ep.Name, ep.Severity)
		}
	}
	return nil
}

// CheckInterval returns the Tier 0 cadence as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// AIEnabled reports whether the configured provider has usable credentials.
// Without AI, Tier 2 degrades to direct alert forwarding and Tier 1 is
// disabled.
func (c *Config) AIEnabled() bool {
	switch c.LLM.Provider {
	case "anthropic":
		return c.LLM.AnthropicAPIKey != ""
	case "openai":
		return c.LLM.OpenAIAPIKey != ""
	case "ollama":
		return c.LLM.OllamaURL != ""
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("victoria_metrics_url", "http://victoria-metrics-single-server.monitoring.svc.cluster.home:8428")
	v.SetDefault("loki_url", "http://loki.monitoring.svc.cluster.home:3100")
	v.SetDefault("dns_server", "technitium-dns.dns.svc.cluster.home")
	v.SetDefault("traefik_url", "https://traefik.external-traefik.svc.cluster.home")
	v.SetDefault("slack_webhook_url", "")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.ollama_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file_path", "")

	v.SetDefault("check_interval_seconds", 300)
	v.SetDefault("digest_hour", 8)

	v.SetDefault("cluster_nodes", []string{"mercury-server", "venus", "mars", "earth"})
	v.SetDefault("expected_node_count", 4)

	v.SetDefault("system_prompt_path", "")
	v.SetDefault("state_path", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("kubeconfig_path", "")
}

// applyCheckTargetDefaults fills the structured check targets when the config
// file did not provide them. Viper defaults do not compose well with slices
// of structs, so these live here.
func applyCheckTargetDefaults(cfg *Config) {
	if len(cfg.ProbeEndpoints) == 0 {
		cfg.ProbeEndpoints = []Endpoint{
			{Name: "n8n", Host: "workflows.stargate-labs.net", Severity: alert.SeverityCritical},
			{Name: "grafana", Host: "grafana.stargate-labs.net", Severity: alert.SeverityWarning},
		}
	}
	if len(cfg.DNSChecks) == 0 {
		cfg.DNSChecks = []DNSCheck{
			{Name: "external-resolution", Query: "google.com", Severity: alert.SeverityCritical},
			{Name: "internal-dns", Query: "workflows.stargate-labs.net", Expected: "10.112.9.201", Severity: alert.SeverityCritical},
		}
	}
	if len(cfg.InternalHealthChecks) == 0 {
		cfg.InternalHealthChecks = []HealthCheck{
			{Name: "victoria-metrics", URL: "http://victoria-metrics-single-server.monitoring.svc.cluster.home:8428/health", Severity: alert.SeverityWarning},
			{Name: "loki", URL: "http://loki.monitoring.svc.cluster.home:3100/ready", Severity: alert.SeverityWarning},
		}
	}
}

// applyEnvOverrides honors the conventional unprefixed variables for secrets
// and collaborator endpoints.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VICTORIA_METRICS_URL"); v != "" {
		cfg.VictoriaMetricsURL = v
	}
	if v := os.Getenv("LOKI_URL"); v != "" {
		cfg.LokiURL = v
	}
	if v := os.Getenv("DNS_SERVER"); v != "" {
		cfg.DNSServer = v
	}
	if v := os.Getenv("TRAEFIK_URL"); v != "" {
		cfg.TraefikURL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.SlackWebhookURL = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.LLM.OllamaURL = v
	}
}
