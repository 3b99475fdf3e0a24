// Package ollama implements the completion contract against a local Ollama
// instance. Ollama is a text-only backend here: tool definitions in the
// request are ignored and responses never contain tool calls, so an agent
// driving this provider concludes on its first text reply.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rampager01/galaxy-agents/internal/llm/types"
)

const (
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Client talks to the Ollama chat API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
}

// New creates an Ollama client for the given instance URL.
func New(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama URL is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}, nil
}

func (c *Client) Name() string { return "ollama" }

// Complete issues one chat call. Content blocks are flattened to plain text;
// tool results render as labelled text so a text-only model still sees the
// evidence it asked about in transcripts replayed from other providers.
func (c *Client) Complete(ctx context.Context, req types.Request) (*types.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{Role: string(m.Role), Content: flatten(m.Content)})
	}

	wire := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{NumPredict: req.MaxTokens},
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &types.ProviderError{Provider: c.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &types.ProviderError{Provider: c.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &types.ProviderError{Provider: c.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &types.ProviderError{Provider: c.Name(), Err: fmt.Errorf("read response: %w", err)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &types.ProviderError{Provider: c.Name(), Err: fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(respBody))}
	}

	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &types.ProviderError{Provider: c.Name(), Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return &types.Response{Content: resp.Message.Content, StopReason: "end_turn"}, nil
}

func flatten(blocks []types.ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		switch block.Type {
		case types.BlockText:
			b.WriteString(block.Text)
		case types.BlockToolUse:
			fmt.Fprintf(&b, "\n[requested tool %s]", block.Name)
		case types.BlockToolResult:
			fmt.Fprintf(&b, "\n[tool result] %s", block.Content)
		}
	}
	return b.String()
}

// SetBaseURL overrides the API base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = strings.TrimRight(url, "/") }
