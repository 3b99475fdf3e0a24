// Package openai implements the completion contract against the OpenAI chat
// completions API. Tool use arrives as function calls with JSON-string
// arguments; translation in both directions is handled by pure mapping
// functions so it can be tested without a server.
package openai

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
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 2000
	DefaultTimeout   = 60 * time.Second
)

// Client talks to the OpenAI chat completions API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiTool struct {
	Type     string         `json:"type"`
	Function oaiFunctionDef `json:"function"`
}

type oaiFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	Tools     []oaiTool    `json:"tools,omitempty"`
	MaxTokens int          `json:"max_tokens"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

// New creates an OpenAI client. The model may be empty to use the default.
func New(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
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

func (c *Client) Name() string { return "openai" }

// Complete issues one chat completion and normalizes the result. Function
// call IDs off the wire become tool call IDs, keeping correlation intact.
func (c *Client) Complete(ctx context.Context, req types.Request) (*types.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	wire := oaiRequest{
		Model:     model,
		Messages:  convertMessages(req.System, req.Messages),
		Tools:     convertTools(req.Tools),
		MaxTokens: maxTokens,
	}

	resp, err := c.post(ctx, wire)
	if err != nil {
		return nil, &types.ProviderError{Provider: c.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &types.ProviderError{Provider: c.Name(), Err: fmt.Errorf("response contained no choices")}
	}

	choice := resp.Choices[0]
	out := &types.Response{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, &types.ProviderError{
					Provider: c.Name(),
					Err:      fmt.Errorf("tool call %s: malformed arguments: %w", tc.ID, err),
				}
			}
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return out, nil
}

// convertMessages flattens the block-based turn history into the OpenAI chat
// shape: the system prompt is a leading system message, assistant tool calls
// become tool_calls entries, and each tool result becomes its own
// role:"tool" message correlated by tool_call_id.
func convertMessages(system string, messages []types.Message) []oaiMessage {
	result := make([]oaiMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, oaiMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		var text string
		var calls []oaiToolCall
		var toolResults []oaiMessage
		for _, b := range m.Content {
			switch b.Type {
			case types.BlockText:
				text += b.Text
			case types.BlockToolUse:
				args, _ := json.Marshal(b.Input)
				calls = append(calls, oaiToolCall{
					ID:   b.ID,
					Type: "function",
					Function: oaiFunction{Name: b.Name, Arguments: string(args)},
				})
			case types.BlockToolResult:
				toolResults = append(toolResults, oaiMessage{
					Role:       "tool",
					Content:    b.Content,
					ToolCallID: b.ToolUseID,
				})
			}
		}
		if len(toolResults) > 0 {
			result = append(result, toolResults...)
			continue
		}
		result = append(result, oaiMessage{Role: string(m.Role), Content: text, ToolCalls: calls})
	}
	return result
}

// convertTools maps neutral tool descriptors onto the OpenAI function format.
func convertTools(tools []types.Tool) []oaiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]oaiTool, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		result = append(result, oaiTool{
			Type:     "function",
			Function: oaiFunctionDef{Name: t.Name, Description: t.Description, Parameters: params},
		})
	}
	return result
}

func (c *Client) post(ctx context.Context, req oaiRequest) (*oaiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var resp oaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// SetBaseURL overrides the API base URL. Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }
