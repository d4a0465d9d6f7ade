package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrQueryInProgress is returned when a second query is started on a session
// whose previous query has not returned yet.
var ErrQueryInProgress = errors.New("a query is already in progress for this session")

// ErrToolNotFound is returned by catalogs for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// ErrEmptyQuery rejects blank user input before it reaches the conversation.
var ErrEmptyQuery = errors.New("query must not be empty")

// RetrievalError reports that the tool retriever could not produce a result.
// The orchestrator recovers by offering the full catalog.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("tool retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// RegistrySyncError reports a failed catalog sync. The previous catalog stays active.
type RegistrySyncError struct {
	Source string
	Err    error
}

func (e *RegistrySyncError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("registry sync from %s failed: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("registry sync failed: %v", e.Err)
}

func (e *RegistrySyncError) Unwrap() error { return e.Err }

// ToolExecutionError is a failed tool invocation. It is fed back to the model
// as an error-status tool message and never aborts a query.
type ToolExecutionError struct {
	ToolName string
	CallID   string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// InferenceError is a failed model call. It aborts the current query; the
// committed conversation history is kept.
type InferenceError struct {
	Round      int
	HTTPStatus int
	Err        error
}

func (e *InferenceError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("inference failed in round %d (status %d): %v", e.Round, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("inference failed in round %d: %v", e.Round, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// RoundLimitExceeded is the designed termination of a query that used all of
// its rounds without a final answer.
type RoundLimitExceeded struct {
	Limit int
}

func (e *RoundLimitExceeded) Error() string {
	return fmt.Sprintf("round limit of %d reached without a final answer", e.Limit)
}

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// EngineError wraps errors with classification metadata.
type EngineError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int    // HTTP status code if applicable
	RetryAfter  string // Retry-After header value if present
	IsRateLimit bool
	IsTimeout   bool
	IsNetwork   bool
	IsAuth      bool
	IsQuota     bool
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Class)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// errorPattern maps message fragments to a retry class. Patterns are checked in order.
type errorPattern struct {
	class     RetryClass
	fragments []string
}

var llmErrorPatterns = []errorPattern{
	// rate limits and server errors
	{RetryClassRetryable, []string{"429", "rate limit", "too many requests"}},
	{RetryClassRetryable, []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded"}},
	// context deadline is checked before the generic "timeout" fragment
	{RetryClassMaybe, []string{"context deadline exceeded", "deadline exceeded"}},
	{RetryClassRetryable, []string{"timeout", "connection reset", "connection refused", "no such host", "network", "dns", "temporary failure", "eof"}},
	{RetryClassMaybe, []string{"context length", "token limit", "maximum context length"}},
	{RetryClassNonRetryable, []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "authentication failed"}},
	{RetryClassNonRetryable, []string{"400", "bad request", "invalid request", "malformed"}},
	{RetryClassNonRetryable, []string{"402", "quota", "billing", "payment required"}},
	{RetryClassNonRetryable, []string{"content filter", "safety", "guardrail", "policy violation"}},
}

var toolErrorPatterns = []errorPattern{
	{RetryClassNonRetryable, []string{"not found", "no such file", "invalid input", "permission denied", "validation failed"}},
	{RetryClassRetryable, []string{"timeout", "connection reset", "connection refused", "network", "temporary failure", "broken pipe"}},
	{RetryClassRetryable, []string{"500", "502", "503", "504", "internal server error", "service unavailable"}},
	{RetryClassRetryable, []string{"resource temporarily unavailable", "file locked", "temporary"}},
}

func classify(err error, patterns []errorPattern) RetryClass {
	errStr := strings.ToLower(err.Error())
	for _, p := range patterns {
		for _, frag := range p.fragments {
			if strings.Contains(errStr, frag) {
				return p.class
			}
		}
	}
	return RetryClassNonRetryable
}

// ClassifyLLMError classifies an error from an inference gateway call.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Class
	}
	return classify(err, llmErrorPatterns)
}

// ClassifyToolError classifies an error from a tool execution.
// Contract failures (unknown tool, invalid arguments) are never retried.
func ClassifyToolError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}
	var validationErr *ToolValidationError
	if errors.As(err, &validationErr) || errors.Is(err, ErrToolNotFound) {
		return RetryClassNonRetryable
	}
	return classify(err, toolErrorPatterns)
}

// ExtractRetryAfter extracts the Retry-After value carried by an error.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.RetryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(engineErr.RetryAfter, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, engineErr.RetryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	if idx := strings.Index(errStr, "retry after "); idx != -1 {
		var seconds int
		if _, err := fmt.Sscanf(errStr[idx:], "retry after %d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// WrapLLMError wraps a provider error with classification metadata.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}

	return &EngineError{
		Err:         err,
		Class:       ClassifyLLMError(err),
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsTimeout:   httpStatus == http.StatusGatewayTimeout || httpStatus == http.StatusRequestTimeout,
		IsNetwork:   httpStatus == 0 || httpStatus >= 500,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
		IsQuota:     httpStatus == http.StatusPaymentRequired,
	}
}

// httpStatusOf returns the HTTP status recorded on err, or 0.
func httpStatusOf(err error) int {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.HTTPStatus
	}
	return 0
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
	IsGuarded   bool // True if this was a "maybe" class error with limited retries
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// RoundContextError wraps errors with the round and operation they happened in.
type RoundContextError struct {
	Err       error
	Round     int
	Operation string // "retrieval", "inference", "tool_execution"
	ToolName  string
}

func (e *RoundContextError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("[round=%d op=%s tool=%s] %v", e.Round, e.Operation, e.ToolName, e.Err)
	}
	return fmt.Sprintf("[round=%d op=%s] %v", e.Round, e.Operation, e.Err)
}

func (e *RoundContextError) Unwrap() error {
	return e.Err
}

func wrapWithRound(err error, round int, operation, toolName string) error {
	if err == nil {
		return nil
	}
	return &RoundContextError{Err: err, Round: round, Operation: operation, ToolName: toolName}
}
