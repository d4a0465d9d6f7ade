package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// roundOutput is everything one round produced. It is staged here and only
// committed to the conversation once the round completed.
type roundOutput struct {
	messages []ChatMessage
	usage    Usage
	text     string
	final    bool
}

// runRound performs one inference call and, if the model asked for tools,
// executes all of them before returning.
func (o *Orchestrator) runRound(ctx context.Context, round int, tools []ToolDefinition) (roundOutput, error) {
	msgs := o.requestMessages()
	o.hooks.OnBeforeInference(ctx, round, msgs, tools)

	resp, err := o.callInferenceWithRetry(ctx, ChatRequest{
		Params:   o.cfg.Model,
		Messages: msgs,
		Tools:    tools,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return roundOutput{}, fmt.Errorf("query cancelled in round %d: %w", round, ctxErr)
		}
		return roundOutput{}, &InferenceError{
			Round:      round,
			HTTPStatus: httpStatusOf(err),
			Err:        wrapWithRound(err, round, "inference", ""),
		}
	}

	usage := resp.Usage.normalize()
	o.hooks.OnAfterInference(ctx, round, resp, o.state.Totals().Add(usage))

	calls := resp.ToolCalls
	if len(calls) == 0 {
		calls = resp.Message.ToolCalls
	}
	calls = normalizeCallIDs(calls)

	assistant := resp.Message
	assistant.Role = RoleAssistant
	assistant.ToolCalls = calls

	out := roundOutput{usage: usage, text: assistant.Content}
	if len(calls) == 0 {
		out.messages = []ChatMessage{assistant}
		out.final = true
		return out, nil
	}

	results := o.executeToolCalls(ctx, round, calls)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return roundOutput{}, fmt.Errorf("query cancelled in round %d: %w", round, ctxErr)
	}

	out.messages = make([]ChatMessage, 0, len(results)+1)
	out.messages = append(out.messages, assistant)
	for _, r := range results {
		out.messages = append(out.messages, r.Message())
	}
	return out, nil
}

// requestMessages is the prompt for the next inference call.
func (o *Orchestrator) requestMessages() []ChatMessage {
	history := o.state.History()
	if o.systemPrompt == "" {
		return history
	}
	return append([]ChatMessage{{Role: RoleSystem, Content: o.systemPrompt}}, history...)
}

// normalizeCallIDs gives every call a unique ID within the round.
func normalizeCallIDs(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}

// executeToolCalls runs every call concurrently and waits for all of them.
// Results are indexed by request position, not completion order.
func (o *Orchestrator) executeToolCalls(ctx context.Context, round int, calls []ToolCall) []ToolResult {
	var wg sync.WaitGroup
	results := make([]ToolResult, len(calls))

	for i, call := range calls {
		wg.Add(1)
		go func(i int, c ToolCall) {
			defer wg.Done()
			o.hooks.OnToolCall(ctx, round, c)
			results[i] = o.executeTool(ctx, c)
			o.hooks.OnToolResult(ctx, round, c, results[i])
		}(i, call)
	}

	wg.Wait()
	return results
}

// executeTool resolves the call against the live catalog, validates its
// arguments and runs it. Every failure becomes an error-status result.
func (o *Orchestrator) executeTool(ctx context.Context, call ToolCall) ToolResult {
	def, err := o.catalog.Get(call.Name)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			return errorResult(call, fmt.Errorf("tool not found: %s", call.Name))
		}
		return errorResult(call, err)
	}

	if call.ArgsErr != nil {
		return errorResult(call, fmt.Errorf("invalid arguments for %s: %w", call.Name, call.ArgsErr))
	}
	if err := def.ValidateArgs(call.Args); err != nil {
		return errorResult(call, err)
	}

	policy := o.cfg.Retry.ToolPolicy
	payload, err := RetryToolCall(ctx, policy, o.executor, call, o.cfg.ToolTimeout,
		func(attempt int, delay time.Duration, retryErr error) {
			o.hooks.OnRetryAttempt(ctx, attempt, policy.MaxRetries, delay, retryErr)
		},
	)
	if err != nil {
		if IsRetryExhausted(err) {
			o.hooks.OnRetryExhausted(ctx, err)
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return errorResult(call, fmt.Errorf("tool %s timed out after %v", call.Name, o.cfg.ToolTimeout))
		}
		var execErr *ToolExecutionError
		if errors.As(err, &execErr) {
			return errorResult(call, execErr.Err)
		}
		return errorResult(call, err)
	}

	return ToolResult{
		CallID:   call.ID,
		ToolName: call.Name,
		Status:   ResultSuccess,
		Payload:  payload,
	}
}

func errorResult(call ToolCall, err error) ToolResult {
	return ToolResult{
		CallID:   call.ID,
		ToolName: call.Name,
		Status:   ResultError,
		Error:    err.Error(),
	}
}

// callInferenceWithRetry calls the gateway under the inference retry policy.
func (o *Orchestrator) callInferenceWithRetry(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	policy := o.cfg.Retry.LLMPolicy
	resp, err := RetryInference(ctx, policy, o.gateway, req, o.cfg.InferenceTimeout,
		func(attempt int, delay time.Duration, retryErr error) {
			o.hooks.OnRetryAttempt(ctx, attempt, policy.MaxRetries, delay, retryErr)
		},
	)
	if err != nil {
		if IsRetryExhausted(err) {
			o.hooks.OnRetryExhausted(ctx, err)
		}
		return ChatResponse{}, err
	}
	return resp, nil
}
