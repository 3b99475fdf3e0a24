package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/alert"
	"github.com/rampager01/galaxy-agents/internal/cluster"
	"github.com/rampager01/galaxy-agents/internal/llm/types"
	"github.com/rampager01/galaxy-agents/internal/lokiq"
	"github.com/rampager01/galaxy-agents/internal/vmetrics"
)

// scriptedCompleter replays canned responses and records every request.
type scriptedCompleter struct {
	responses []*types.Response
	errs      []error
	requests  []types.Request
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Complete(_ context.Context, req types.Request) (*types.Response, error) {
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx >= len(s.responses) {
		return &types.Response{Content: "done", StopReason: "end_turn"}, nil
	}
	return s.responses[idx], nil
}

type sentNotification struct {
	severity alert.Severity
	title    string
	message  string
}

type recordingNotifier struct {
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, severity alert.Severity, title, message string) bool {
	n.sent = append(n.sent, sentNotification{severity, title, message})
	return true
}

type stubMetrics struct {
	samples []vmetrics.Sample
	err     error
	queries []string
}

func (m *stubMetrics) Query(_ context.Context, promql string) ([]vmetrics.Sample, error) {
	m.queries = append(m.queries, promql)
	return m.samples, m.err
}

type stubLogs struct {
	entries []lokiq.Entry
	err     error
	sinces  []time.Duration
}

func (l *stubLogs) Query(_ context.Context, _ string, _ int, since time.Duration) ([]lokiq.Entry, error) {
	l.sinces = append(l.sinces, since)
	return l.entries, l.err
}

type stubCluster struct {
	summary *cluster.Summary
	err     error
}

func (c *stubCluster) Status(_ context.Context) (*cluster.Summary, error) {
	return c.summary, c.err
}

func newTestRegistry(m *stubMetrics, l *stubLogs, c StatusFetcher, n Notifier) *Registry {
	return NewRegistry(m, l, c, n, zap.NewNop())
}

func toolCallResponse(calls ...types.ToolCall) *types.Response {
	return &types.Response{ToolCalls: calls, StopReason: "tool_use"}
}

func testAlerts() []alert.Alert {
	return []alert.Alert{
		{CheckName: "Memory High", Severity: alert.SeverityWarning, Message: "venus: memory usage 88%"},
	}
}

func TestInvestigateConcludesByText(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []*types.Response{
			toolCallResponse(types.ToolCall{
				ID: "call_1", Name: ToolQueryMetrics,
				Input: map[string]interface{}{"promql": "up"},
			}),
			{Content: "Memory pressure comes from the backup job, it is already finishing.", StopReason: "end_turn"},
		},
	}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(
		&stubMetrics{samples: []vmetrics.Sample{{Labels: map[string]string{"__name__": "up"}, Value: "1"}}},
		&stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, nil, zap.NewNop())
	outcome := inv.Investigate(context.Background(), testAlerts())

	assert.Equal(t, OutcomeConcludedByText, outcome)
	require.Len(t, completer.requests, 2)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Investigation Result", notifier.sent[0].title)
	assert.Equal(t, alert.SeverityWarning, notifier.sent[0].severity)
	assert.Contains(t, notifier.sent[0].message, "backup job")
}

func TestInvestigateEmptyTextConcludesSilently(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []*types.Response{{Content: "   ", StopReason: "end_turn"}},
	}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(&stubMetrics{}, &stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, nil, zap.NewNop())
	outcome := inv.Investigate(context.Background(), testAlerts())

	assert.Equal(t, OutcomeConcludedByText, outcome)
	require.Len(t, completer.requests, 1)
	// A conclusion without findings sends nothing.
	assert.Empty(t, notifier.sent)
}

func TestInvestigateConcludesByAlert(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []*types.Response{
			toolCallResponse(types.ToolCall{
				ID: "call_1", Name: ToolSendAlert,
				Input: map[string]interface{}{
					"severity": "critical",
					"title":    "Disk Full on venus",
					"message":  "Root filesystem at 97%, backups are failing.",
				},
			}),
		},
	}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(&stubMetrics{}, &stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, nil, zap.NewNop())
	outcome := inv.Investigate(context.Background(), testAlerts())

	assert.Equal(t, OutcomeConcludedByAlert, outcome)
	require.Len(t, completer.requests, 1)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, alert.SeverityCritical, notifier.sent[0].severity)
	assert.Equal(t, "Disk Full on venus", notifier.sent[0].title)
}

func TestInvestigateTimesOutAtRoundLimit(t *testing.T) {
	// The model keeps asking for metrics and never concludes.
	var responses []*types.Response
	for i := 0; i < MaxRounds+3; i++ {
		responses = append(responses, toolCallResponse(types.ToolCall{
			ID: fmt.Sprintf("call_%d", i), Name: ToolQueryMetrics,
			Input: map[string]interface{}{"promql": "up"},
		}))
	}
	completer := &scriptedCompleter{responses: responses}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(&stubMetrics{}, &stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, nil, zap.NewNop())
	outcome := inv.Investigate(context.Background(), testAlerts())

	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Len(t, completer.requests, MaxRounds)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Investigation Timeout", notifier.sent[0].title)
	assert.Equal(t, alert.SeverityWarning, notifier.sent[0].severity)
	// The timeout notification carries the original alerts.
	assert.Contains(t, notifier.sent[0].message, "venus: memory usage 88%")
}

func TestInvestigateProviderFailureNotifies(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("connection refused")}}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(&stubMetrics{}, &stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, nil, zap.NewNop())
	outcome := inv.Investigate(context.Background(), testAlerts())

	assert.Equal(t, OutcomeProviderFailed, outcome)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Investigation Failed", notifier.sent[0].title)
	assert.Contains(t, notifier.sent[0].message, "venus: memory usage 88%")
}

func TestInvestigateCorrelatesToolResults(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []*types.Response{
			toolCallResponse(
				types.ToolCall{ID: "call_a", Name: ToolQueryMetrics, Input: map[string]interface{}{"promql": "up"}},
				types.ToolCall{ID: "call_b", Name: "no_such_tool", Input: map[string]interface{}{}},
			),
			{Content: "done", StopReason: "end_turn"},
		},
	}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(
		&stubMetrics{samples: []vmetrics.Sample{{Labels: map[string]string{"__name__": "up"}, Value: "1"}}},
		&stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, nil, zap.NewNop())
	inv.Investigate(context.Background(), testAlerts())

	require.Len(t, completer.requests, 2)
	second := completer.requests[1]
	require.Len(t, second.Messages, 3) // initial user, assistant turn, tool results

	assistant := second.Messages[1]
	assert.Equal(t, types.RoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 2)
	assert.Equal(t, "call_a", assistant.Content[0].ID)
	assert.Equal(t, "call_b", assistant.Content[1].ID)

	results := second.Messages[2]
	assert.Equal(t, types.RoleUser, results.Role)
	require.Len(t, results.Content, 2)
	assert.Equal(t, "call_a", results.Content[0].ToolUseID)
	assert.False(t, results.Content[0].IsError)
	assert.Equal(t, "call_b", results.Content[1].ToolUseID)
	assert.True(t, results.Content[1].IsError)
	assert.Contains(t, results.Content[1].Content, "Unknown tool")
}

func TestInvestigateSynthesizesMissingCallIDs(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []*types.Response{
			toolCallResponse(types.ToolCall{Name: ToolQueryMetrics, Input: map[string]interface{}{"promql": "up"}}),
			{Content: "done", StopReason: "end_turn"},
		},
	}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(&stubMetrics{}, &stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, nil, zap.NewNop())
	inv.Investigate(context.Background(), testAlerts())

	require.Len(t, completer.requests, 2)
	second := completer.requests[1]
	id := second.Messages[1].Content[0].ID
	assert.True(t, strings.HasPrefix(id, "call_"))
	assert.Equal(t, id, second.Messages[2].Content[0].ToolUseID)
}

func TestInvestigateUsesCustomPrompt(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []*types.Response{{Content: "ok", StopReason: "end_turn"}},
	}
	notifier := &recordingNotifier{}
	registry := newTestRegistry(&stubMetrics{}, &stubLogs{}, nil, notifier)

	inv := NewInvestigator(completer, registry, notifier, StaticPrompt("custom persona"), zap.NewNop())
	inv.Investigate(context.Background(), testAlerts())

	require.Len(t, completer.requests, 1)
	assert.Equal(t, "custom persona", completer.requests[0].System)
}
