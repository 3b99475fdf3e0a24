// Package types defines the provider-agnostic completion contract. Every
// backend, whatever its wire protocol, is normalized into these shapes.
package types

import "fmt"

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one item of a turn's content: free text, a model-issued
// tool call, or the result of executing one. Only the fields for the given
// Type are meaningful.
type ContentBlock struct {
	Type BlockType

	// BlockText
	Text string

	// BlockToolUse
	ID    string
	Name  string
	Input map[string]interface{}

	// BlockToolResult
	ToolUseID string
	Content   string
	IsError   bool
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock echoes a model-issued tool call back into the turn history.
func ToolUseBlock(call ToolCall) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: call.ID, Name: call.Name, Input: call.Input}
}

// ToolResultBlock carries one tool execution result, correlated to its call
// by toolUseID.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is one exchange in a conversation. Ordering is append-only.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// UserText builds a single-text-block user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// Tool describes a callable capability exposed to the model. InputSchema is
// a JSON Schema object with required vs optional properties.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is a model-issued invocation. ID is stable within the response it
// arrived in so results can be correlated in the next request.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Request is one call to an LLM backend. Immutable once issued.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
	Tools     []Tool
	Model     string // optional override of the provider's configured model
}

// Response is the normalized result of a Request. Content and ToolCalls may
// both be non-empty in one response.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
}

// ProviderError wraps any backend failure: transport, authentication, or a
// malformed response. Callers own the retry policy.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
