package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message kept in the conversation history.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	// ToolCalls are the invocations requested by an assistant message.
	// Providers need them to rebuild tool_use blocks on the next request.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool message to the assistant request it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("tool messages must have a ToolCallID")
	}
	if m.Role != RoleAssistant && len(m.ToolCalls) > 0 {
		return fmt.Errorf("only assistant messages may carry tool calls (role=%s)", m.Role)
	}
	return nil
}

// Usage holds token accounting. Input and Output are reported by the gateway,
// Total is their sum.
type Usage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
	Total  int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Input:  u.Input + o.Input,
		Output: u.Output + o.Output,
		Total:  u.Total + o.Total,
	}
}

// normalize fills Total when a provider only reports input and output.
func (u Usage) normalize() Usage {
	if u.Total == 0 {
		u.Total = u.Input + u.Output
	}
	return u
}

// RoundMetrics is the token usage of a single orchestration round.
type RoundMetrics struct {
	Round        int `json:"round"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolCall represents a tool invocation the assistant requested.
type ToolCall struct {
	ID   string         `json:"id"` // provider call ID (e.g. OpenAI call_xxx, Anthropic toolu_xxx)
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	// ArgsErr is set by a gateway when the model's arguments could not be
	// decoded. Such a call is answered with an error result and never run.
	ArgsErr error `json:"-"`
}

// ResultStatus is the outcome of a tool invocation.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// ToolResult is the structured outcome of one ToolCall.
type ToolResult struct {
	CallID   string       `json:"call_id"`
	ToolName string       `json:"tool_name"`
	Status   ResultStatus `json:"status"`
	Payload  string       `json:"payload,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Message renders the result as the tool message appended to the history.
func (r ToolResult) Message() ChatMessage {
	msg := ChatMessage{
		Role:       RoleTool,
		ToolCallID: r.CallID,
		ToolName:   r.ToolName,
		Content:    r.Payload,
	}
	if r.Status == ResultError {
		msg.IsError = true
		msg.Content = "ERROR: " + r.Error
	}
	return msg
}

// ModelParams are the sampling parameters forwarded to the gateway.
type ModelParams struct {
	Model       string  `yaml:"model" json:"model"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float32 `yaml:"temperature" json:"temperature"`
}

// ChatRequest is one stateless call to the language model.
type ChatRequest struct {
	Params   ModelParams
	Messages []ChatMessage
	Tools    []ToolDefinition
}

// ChatResponse is a normalized result of one chat call.
type ChatResponse struct {
	Message      ChatMessage
	ToolCalls    []ToolCall // zero or more tool calls requested by the model
	Usage        Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter"
}

// InferenceGateway abstracts the model provider SDK (OpenAI, Anthropic, ...).
type InferenceGateway interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// ToolExecutor runs a named tool with structured arguments.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// Status is the terminal state of a query.
type Status string

const (
	StatusFinished Status = "finished"
	StatusAborted  Status = "aborted"
)

// RoundLimitMarker is appended to the partial answer of an aborted query.
const RoundLimitMarker = "[round limit reached]"

// FinalResponse is what HandleQuery returns for one user query.
type FinalResponse struct {
	Text              string
	Status            Status
	Rounds            int
	Usage             Usage          // tokens spent by this query
	RoundMetrics      []RoundMetrics // one entry per executed round
	ToolsOffered      []string       // names of the tool subset given to the model
	RetrievalFallback bool           // true when retrieval failed and the full catalog was used
	Termination       error          // *RoundLimitExceeded when Status is StatusAborted
}
