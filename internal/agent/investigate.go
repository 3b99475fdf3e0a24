package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/llm/types"
	"github.com/rampager01/galaxy-agents/internal/metrics"
)

// MaxRounds bounds the tool-use loop. Each round is exactly one completion
// request; an investigation that has not concluded by the last round is
// terminated with a timeout notification.
const MaxRounds = 5

const investigationMaxTokens = 2000

// Outcome is the terminal state of one investigation.
type Outcome string

const (
	// OutcomeConcludedByText: the model answered with text only, which was
	// forwarded as an Investigation Result notification.
	OutcomeConcludedByText Outcome = "concluded_by_text"
	// OutcomeConcludedByAlert: the model called send_alert; the round's tool
	// results were appended and the loop stopped.
	OutcomeConcludedByAlert Outcome = "concluded_by_alert"
	// OutcomeTimedOut: the round limit was exhausted without a conclusion.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeProviderFailed: a completion request failed; the investigation
	// was abandoned with a notification carrying the original alerts.
	OutcomeProviderFailed Outcome = "provider_failed"
)

// Completer issues one completion request.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req types.Request) (*types.Response, error)
}

// Investigator runs the bounded tool-use loop that turns threshold alerts
// into a root-cause notification.
type Investigator struct {
	provider  Completer
	registry  *Registry
	notifier  Notifier
	prompts   PromptSource
	maxRounds int
	log       *zap.Logger
}

// NewInvestigator wires the loop. prompts may be nil; the built-in persona
// is used then and whenever the source fails to load.
func NewInvestigator(provider Completer, registry *Registry, notifier Notifier, prompts PromptSource, log *zap.Logger) *Investigator {
	return &Investigator{
		provider:  provider,
		registry:  registry,
		notifier:  notifier,
		prompts:   prompts,
		maxRounds: MaxRounds,
		log:       log,
	}
}

// Investigate runs one investigation over the given alert batch and returns
// its terminal outcome. It never panics the caller's tick: every failure mode
// degrades to a notification.
func (a *Investigator) Investigate(ctx context.Context, alerts []alert.Alert) Outcome {
	runID := uuid.NewString()[:8]
	alertText := formatAlerts(alerts)
	log := a.log.With(zap.String("investigation_id", runID))
	log.Info("starting investigation",
		zap.Int("alerts", len(alerts)), zap.String("provider", a.provider.Name()))

	system := a.systemPrompt(log)
	tools := a.registry.Descriptors()
	history := []types.Message{types.UserText(
		"The following alerts fired during the last check cycle:\n\n" + alertText +
			"\n\nInvestigate and report your findings.")}

	rounds := 0
	outcome := OutcomeTimedOut
	defer func() {
		metrics.InvestigationsTotal.WithLabelValues(string(outcome)).Inc()
		metrics.InvestigationRounds.Observe(float64(rounds))
		log.Info("investigation finished",
			zap.String("outcome", string(outcome)), zap.Int("rounds", rounds))
	}()

	for round := 1; round <= a.maxRounds; round++ {
		rounds = round
		resp, err := a.provider.Complete(ctx, types.Request{
			System:    system,
			Messages:  history,
			MaxTokens: investigationMaxTokens,
			Tools:     tools,
		})
		if err != nil {
			log.Error("completion request failed", zap.Int("round", round), zap.Error(err))
			a.notifier.Notify(ctx, alert.SeverityWarning, "Investigation Failed",
				truncate(fmt.Sprintf("AI investigation aborted (%v). Original alerts:\n%s", err, alertText), maxNotificationLen))
			outcome = OutcomeProviderFailed
			return outcome
		}

		if len(resp.ToolCalls) == 0 {
			// An empty text conclusion ends the investigation silently.
			if text := strings.TrimSpace(resp.Content); text != "" {
				a.notifier.Notify(ctx, alert.SeverityWarning, "Investigation Result",
					truncate(text, maxNotificationLen))
			}
			outcome = OutcomeConcludedByText
			return outcome
		}

		// Backends without stable call IDs get synthesized ones so results
		// still correlate.
		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" {
				resp.ToolCalls[i].ID = "call_" + uuid.NewString()[:8]
			}
		}

		history = append(history, assistantTurn(resp))
		results := a.registry.dispatch(ctx, resp.ToolCalls)
		history = append(history, types.Message{Role: types.RoleUser, Content: results})

		for _, call := range resp.ToolCalls {
			if call.Name == ToolSendAlert {
				outcome = OutcomeConcludedByAlert
				return outcome
			}
		}
	}

	a.notifier.Notify(ctx, alert.SeverityWarning, "Investigation Timeout",
		truncate(fmt.Sprintf("AI investigation hit the %d-round limit without concluding. Original alerts:\n%s",
			a.maxRounds, alertText), maxNotificationLen))
	outcome = OutcomeTimedOut
	return outcome
}

func (a *Investigator) systemPrompt(log *zap.Logger) string {
	if a.prompts == nil {
		return defaultSystemPrompt
	}
	prompt, err := a.prompts.Load()
	if err != nil || strings.TrimSpace(prompt) == "" {
		if err != nil {
			log.Warn("prompt source failed, using built-in persona", zap.Error(err))
		}
		return defaultSystemPrompt
	}
	return prompt
}

// assistantTurn rebuilds the assistant message from a response so the next
// request carries the model's own text and tool calls verbatim.
func assistantTurn(resp *types.Response) types.Message {
	msg := types.Message{Role: types.RoleAssistant}
	if resp.Content != "" {
		msg.Content = append(msg.Content, types.TextBlock(resp.Content))
	}
	for _, call := range resp.ToolCalls {
		msg.Content = append(msg.Content, types.ToolUseBlock(call))
	}
	return msg
}

func formatAlerts(alerts []alert.Alert) string {
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		lines = append(lines, a.String())
	}
	return strings.Join(lines, "\n")
}
