package engine

import (
	"context"
	"time"
)

type Event struct {
	Kind string // "query_start", "retrieval", "before_inference", "after_inference", "tool_start", "tool_done", "round_end", "retry_attempt", "retry_exhausted", "done"
	Data any
}

// EventHook forwards engine progress to a channel. Sends are non-blocking:
// events are dropped when the consumer falls behind.
type EventHook struct{ Ch chan<- Event }

func (h EventHook) send(kind string, data any) {
	select {
	case h.Ch <- Event{Kind: kind, Data: data}:
	default:
	}
}

func (h EventHook) OnQueryStart(_ context.Context, q string) {
	h.send("query_start", q)
}
func (h EventHook) OnRetrieval(_ context.Context, offered []ToolDefinition, fallback bool, _ error) {
	h.send("retrieval", map[string]any{"tools": ToolNames(offered), "fallback": fallback})
}
func (h EventHook) OnBeforeInference(_ context.Context, round int, m []ChatMessage, tools []ToolDefinition) {
	h.send("before_inference", map[string]int{"round": round, "messages": len(m), "tools": len(tools)})
}
func (h EventHook) OnAfterInference(_ context.Context, round int, r ChatResponse, _ Usage) {
	h.send("after_inference", map[string]any{"round": round, "finish": r.FinishReason, "tool_calls": len(r.ToolCalls)})
}
func (h EventHook) OnToolCall(_ context.Context, _ int, c ToolCall) {
	h.send("tool_start", c.Name)
}
func (h EventHook) OnToolResult(_ context.Context, _ int, c ToolCall, r ToolResult) {
	h.send("tool_done", map[string]string{"tool": c.Name, "status": string(r.Status)})
}
func (h EventHook) OnRoundEnd(_ context.Context, m RoundMetrics) {
	h.send("round_end", m)
}
func (h EventHook) OnRetryAttempt(_ context.Context, attempt int, maxAttempts int, delay time.Duration, err error) {
	h.send("retry_attempt", map[string]any{
		"attempt":     attempt,
		"maxAttempts": maxAttempts,
		"delay":       delay,
		"error":       err.Error(),
	})
}
func (h EventHook) OnRetryExhausted(_ context.Context, err error) {
	h.send("retry_exhausted", err.Error())
}
func (h EventHook) OnDone(_ context.Context, r FinalResponse, _ error) {
	h.send("done", r.Status)
}
