package engine

import (
	"context"
	"time"
)

type Hooks []Hook

func (hs Hooks) OnQueryStart(ctx context.Context, q string) {
	for _, h := range hs {
		h.OnQueryStart(ctx, q)
	}
}
func (hs Hooks) OnRetrieval(ctx context.Context, offered []ToolDefinition, fallback bool, err error) {
	for _, h := range hs {
		h.OnRetrieval(ctx, offered, fallback, err)
	}
}
func (hs Hooks) OnBeforeInference(ctx context.Context, round int, m []ChatMessage, tools []ToolDefinition) {
	for _, h := range hs {
		h.OnBeforeInference(ctx, round, m, tools)
	}
}
func (hs Hooks) OnAfterInference(ctx context.Context, round int, r ChatResponse, totals Usage) {
	for _, h := range hs {
		h.OnAfterInference(ctx, round, r, totals)
	}
}
func (hs Hooks) OnToolCall(ctx context.Context, round int, c ToolCall) {
	for _, h := range hs {
		h.OnToolCall(ctx, round, c)
	}
}
func (hs Hooks) OnToolResult(ctx context.Context, round int, c ToolCall, r ToolResult) {
	for _, h := range hs {
		h.OnToolResult(ctx, round, c, r)
	}
}
func (hs Hooks) OnRoundEnd(ctx context.Context, m RoundMetrics) {
	for _, h := range hs {
		h.OnRoundEnd(ctx, m)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, attempt int, maxAttempts int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, attempt, maxAttempts, delay, err)
	}
}
func (hs Hooks) OnRetryExhausted(ctx context.Context, err error) {
	for _, h := range hs {
		h.OnRetryExhausted(ctx, err)
	}
}
func (hs Hooks) OnDone(ctx context.Context, r FinalResponse, err error) {
	for _, h := range hs {
		h.OnDone(ctx, r, err)
	}
}
