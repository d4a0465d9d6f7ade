package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for a specific operation type.
type RetryPolicy struct {
	MaxRetries   int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay cap
	Multiplier   float64       // Exponential backoff multiplier (e.g., 2.0)
	Jitter       bool          // Whether to add random jitter to delays
}

// RetryConfig holds separate retry policies for inference and tool calls.
type RetryConfig struct {
	LLMPolicy  RetryPolicy
	ToolPolicy RetryPolicy
}

// maybeRetryCap bounds the attempts spent on "maybe" class errors.
const maybeRetryCap = 2

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// NewRetryExhaustedError creates a RetryExhaustedError.
func NewRetryExhaustedError(err error, attempts, maxAttempts int, guarded bool) *RetryExhaustedError {
	return &RetryExhaustedError{Err: err, Attempts: attempts, MaxAttempts: maxAttempts, IsGuarded: guarded}
}

// RetryWithPolicy executes fn until it succeeds, fails with a non-retryable
// error, or the policy's budget runs out.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classifyError func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		// A cancelled caller is never retried.
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(err, ctxErr) {
				return zero, err
			}
			return zero, fmt.Errorf("%w: %v", ctxErr, err)
		}

		class := classifyError(err)
		if class == RetryClassNonRetryable {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			return zero, NewRetryExhaustedError(err, attempt, policy.MaxRetries, false)
		}
		if class == RetryClassMaybe && attempt >= maybeRetryCap {
			return zero, NewRetryExhaustedError(err, attempt, maybeRetryCap, true)
		}

		delay := calculateDelay(policy, attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// calculateDelay computes the delay for a retry attempt.
// A Retry-After hint wins over exponential backoff, capped at MaxDelay.
func calculateDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	if retryAfter := ExtractRetryAfter(err); retryAfter > 0 {
		if retryAfter > policy.MaxDelay {
			return policy.MaxDelay
		}
		return retryAfter
	}

	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(policy.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	// 0-20% jitter
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}

// RetryInference wraps a gateway call with retry logic. Each attempt gets its
// own timeout when timeout > 0. An attempt that runs out its own timeout
// ends the call without further attempts.
func RetryInference(
	ctx context.Context,
	policy RetryPolicy,
	gateway InferenceGateway,
	req ChatRequest,
	timeout time.Duration,
	onRetry func(attempt int, delay time.Duration, err error),
) (ChatResponse, error) {
	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (ChatResponse, error) {
			callCtx, cancel := withOptionalTimeout(ctx, timeout)
			defer cancel()
			resp, err := gateway.Chat(callCtx, req)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return resp, &EngineError{Err: err, Class: RetryClassNonRetryable, IsTimeout: true}
			}
			return resp, err
		},
		ClassifyLLMError,
		onRetry,
	)
}

// RetryToolCall wraps an executor call with retry logic. Each attempt gets its
// own timeout when timeout > 0.
func RetryToolCall(
	ctx context.Context,
	policy RetryPolicy,
	executor ToolExecutor,
	call ToolCall,
	timeout time.Duration,
	onRetry func(attempt int, delay time.Duration, err error),
) (string, error) {
	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (string, error) {
			callCtx, cancel := withOptionalTimeout(ctx, timeout)
			defer cancel()
			return executor.Execute(callCtx, call.Name, call.Args)
		},
		ClassifyToolError,
		onRetry,
	)
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
