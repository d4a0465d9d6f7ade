// engine/hooks.go
package engine

import (
	"context"
	"time"
)

// Hook observes a query as it moves through retrieval, inference and tool rounds.
// Hooks are called from the orchestrator goroutine, except OnToolCall and
// OnToolResult which run on the tool's goroutine.
type Hook interface {
	OnQueryStart(ctx context.Context, query string)
	OnRetrieval(ctx context.Context, offered []ToolDefinition, fallback bool, err error)
	OnBeforeInference(ctx context.Context, round int, messages []ChatMessage, tools []ToolDefinition)
	OnAfterInference(ctx context.Context, round int, resp ChatResponse, totals Usage)
	OnToolCall(ctx context.Context, round int, call ToolCall)
	OnToolResult(ctx context.Context, round int, call ToolCall, result ToolResult)
	OnRoundEnd(ctx context.Context, metrics RoundMetrics)
	OnRetryAttempt(ctx context.Context, attempt int, maxAttempts int, delay time.Duration, err error)
	OnRetryExhausted(ctx context.Context, err error)
	OnDone(ctx context.Context, resp FinalResponse, err error)
}

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnQueryStart(context.Context, string)                                     {}
func (NopHook) OnRetrieval(context.Context, []ToolDefinition, bool, error)               {}
func (NopHook) OnBeforeInference(context.Context, int, []ChatMessage, []ToolDefinition)  {}
func (NopHook) OnAfterInference(context.Context, int, ChatResponse, Usage)               {}
func (NopHook) OnToolCall(context.Context, int, ToolCall)                                {}
func (NopHook) OnToolResult(context.Context, int, ToolCall, ToolResult)                  {}
func (NopHook) OnRoundEnd(context.Context, RoundMetrics)                                 {}
func (NopHook) OnRetryAttempt(context.Context, int, int, time.Duration, error)           {}
func (NopHook) OnRetryExhausted(context.Context, error)                                  {}
func (NopHook) OnDone(context.Context, FinalResponse, error)                             {}
