// engine/hook_logger.go
package engine

import (
	"context"
	"log"
	"strings"
	"time"
)

type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) OnQueryStart(_ context.Context, q string) {
	h.L.Printf("query: %s", preview(q, 100))
}
func (h LoggerHook) OnRetrieval(_ context.Context, offered []ToolDefinition, fallback bool, err error) {
	if fallback {
		h.L.Printf("⚠️  retrieval unavailable, offering full catalog (%d tools): %v", len(offered), err)
		return
	}
	h.L.Printf("📚 offering %d tools: %s", len(offered), strings.Join(ToolNames(offered), ", "))
}
func (h LoggerHook) OnBeforeInference(_ context.Context, round int, msgs []ChatMessage, tools []ToolDefinition) {
	messageTokens := EstimateMessageTokens(msgs)
	toolTokens := EstimateToolTokens(tools)
	h.L.Printf("📤 round=%d: %d msgs | 💰 tokens: messages=~%d, tools=~%d, TOTAL=~%d",
		round, len(msgs), messageTokens, toolTokens, messageTokens+toolTokens)
}
func (h LoggerHook) OnAfterInference(_ context.Context, round int, r ChatResponse, totals Usage) {
	h.L.Printf("round=%d finish=%s tokens: input=%d output=%d (cumulative=%d)",
		round, r.FinishReason, r.Usage.Input, r.Usage.Output, totals.Total)
}
func (h LoggerHook) OnToolCall(_ context.Context, _ int, c ToolCall) {
	h.L.Printf("tool → %s args=%v", c.Name, c.Args)
}
func (h LoggerHook) OnToolResult(_ context.Context, _ int, c ToolCall, r ToolResult) {
	if r.Status == ResultError {
		h.L.Printf("tool %s error: %s", c.Name, r.Error)
		return
	}
	h.L.Printf("tool %s result: %s", c.Name, preview(r.Payload, 100))
}
func (h LoggerHook) OnRoundEnd(_ context.Context, m RoundMetrics) {
	h.L.Printf("round=%d done: input=%d output=%d", m.Round, m.InputTokens, m.OutputTokens)
}
func (h LoggerHook) OnRetryAttempt(_ context.Context, attempt int, maxAttempts int, delay time.Duration, err error) {
	h.L.Printf("retry attempt=%d/%d delay=%v error=%v", attempt, maxAttempts, delay, err)
}
func (h LoggerHook) OnRetryExhausted(_ context.Context, err error) {
	h.L.Printf("retries exhausted: %v", err)
}
func (h LoggerHook) OnDone(_ context.Context, r FinalResponse, err error) {
	if err != nil {
		h.L.Printf("query failed after %d rounds: %v", r.Rounds, err)
		return
	}
	h.L.Printf("done: status=%s rounds=%d tokens=%d", r.Status, r.Rounds, r.Usage.Total)
}

// preview shortens s to n runes.
func preview(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
