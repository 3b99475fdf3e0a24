package agent

import (
	"os"
	"strings"
)

// defaultSystemPrompt is the built-in investigator persona, used when no
// prompt file is configured or the configured file cannot be read.
const defaultSystemPrompt = `You are Galaxy Sentinel, the monitoring agent for a small on-prem Kubernetes cluster (k3s).

The cluster nodes are: mercury-server (control plane), venus, mars, earth.
Observability stack: VictoriaMetrics (PromQL), Loki (LogQL), Flux CD for GitOps.

You receive alerts from automated threshold checks. Your job:
1. Investigate the alerts using the available tools.
2. Determine the root cause, or the most likely explanation.
3. Send ONE alert to Slack via send_alert with your findings, choosing the severity honestly.

Be concise. Lead with what is broken and why. Do not speculate beyond what the data shows.
If metrics or logs are unavailable, say so in the alert rather than guessing.`

// PromptSource supplies the investigator's system prompt.
type PromptSource interface {
	Load() (string, error)
}

// FilePromptSource reads the system prompt from a file on every load, so
// prompt edits take effect on the next investigation without a restart.
type FilePromptSource struct {
	Path string
}

func (f FilePromptSource) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// StaticPrompt always returns itself. Used in tests and as the built-in
// fallback.
type StaticPrompt string

func (s StaticPrompt) Load() (string, error) { return string(s), nil }
