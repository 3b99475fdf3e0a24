// Package anthropic implements the completion contract against the Anthropic
// Messages API, the backend with native structured tool use.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rampager01/galaxy-agents/internal/llm/types"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com/v1"
	DefaultModel      = "claude-haiku-4-5-20251001"
	DefaultMaxTokens  = 2000
	DefaultAPIVersion = "2023-06-01"
	DefaultTimeout    = 60 * time.Second
)

// Client talks to the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type anthContentBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
	IsError   bool                   `json:"is_error,omitempty"`
}

type anthMessage struct {
	Role    string             `json:"role"`
	Content []anthContentBlock `json:"content"`
}

type anthTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []anthMessage `json:"messages"`
	Tools     []anthTool    `json:"tools,omitempty"`
}

type anthResponse struct {
	ID         string             `json:"id"`
	Content    []anthContentBlock `json:"content"`
	StopReason string             `json:"stop_reason"`
}

// New creates an Anthropic client. The model may be empty to use the default.
func New(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}, nil
}

func (c *Client) Name() string { return "anthropic" }

// Complete issues one Messages API call and normalizes the result. Tool call
// IDs come straight off the wire, so result correlation is exact.
func (c *Client) Complete(ctx context.Context, req types.Request) (*types.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	wire := anthRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  convertMessages(req.Messages),
		Tools:     convertTools(req.Tools),
	}

	resp, err := c.post(ctx, wire)
	if err != nil {
		return nil, &types.ProviderError{Provider: c.Name(), Err: err}
	}

	out := &types.Response{StopReason: resp.StopReason}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	return out, nil
}

// convertMessages maps the neutral message form onto Anthropic content
// blocks. The shapes line up one to one.
func convertMessages(messages []types.Message) []anthMessage {
	result := make([]anthMessage, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case types.BlockText:
				blocks = append(blocks, anthContentBlock{Type: "text", Text: b.Text})
			case types.BlockToolUse:
				blocks = append(blocks, anthContentBlock{Type: "tool_use", ID: b.ID, Name: b.Name, Input: b.Input})
			case types.BlockToolResult:
				blocks = append(blocks, anthContentBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
			}
		}
		result = append(result, anthMessage{Role: string(m.Role), Content: blocks})
	}
	return result
}

func convertTools(tools []types.Tool) []anthTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthTool, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		result = append(result, anthTool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return result
}

func (c *Client) post(ctx context.Context, req anthRequest) (*anthResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", DefaultAPIVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp anthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// SetBaseURL overrides the API base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }
