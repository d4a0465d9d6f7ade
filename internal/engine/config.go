package engine

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultRoundLimit       = 5
	DefaultTopK             = 2
	DefaultMaxTokens        = 4096
	DefaultTemperature      = 0.7
	DefaultInferenceTimeout = 60 * time.Second
	DefaultToolTimeout      = 30 * time.Second
)

// Config holds the orchestrator settings. It is validated once by New and
// never changes for the lifetime of an orchestrator.
type Config struct {
	RoundLimit       int
	RetrievalEnabled bool
	TopK             int
	Model            ModelParams
	InferenceTimeout time.Duration // per gateway call, 0 disables
	ToolTimeout      time.Duration // per executor call, 0 disables
	Retry            RetryConfig
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		RoundLimit:       DefaultRoundLimit,
		RetrievalEnabled: true,
		TopK:             DefaultTopK,
		Model: ModelParams{
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		InferenceTimeout: DefaultInferenceTimeout,
		ToolTimeout:      DefaultToolTimeout,
		Retry:            DefaultRetryConfig(),
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.RoundLimit < 1 {
		errs = append(errs, fmt.Errorf("round limit must be >= 1, got %d", c.RoundLimit))
	}
	if c.RetrievalEnabled && c.TopK < 1 {
		errs = append(errs, fmt.Errorf("top-k must be >= 1 when retrieval is enabled, got %d", c.TopK))
	}
	if c.Model.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max tokens must not be negative, got %d", c.Model.MaxTokens))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be in [0,2], got %v", c.Model.Temperature))
	}
	if c.InferenceTimeout < 0 || c.ToolTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	for name, p := range map[string]RetryPolicy{"llm": c.Retry.LLMPolicy, "tool": c.Retry.ToolPolicy} {
		if p.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("%s retry policy: max retries must not be negative", name))
		}
		if p.MaxRetries > 0 && p.MaxDelay < p.InitialDelay {
			errs = append(errs, fmt.Errorf("%s retry policy: max delay %v is below initial delay %v", name, p.MaxDelay, p.InitialDelay))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid engine config: %w", errors.Join(errs...))
	}
	return nil
}

// DefaultRetryConfig returns sensible default retry policies.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		LLMPolicy: RetryPolicy{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		ToolPolicy: RetryPolicy{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}
