package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithPolicy(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		policy       RetryPolicy
		wantCalls    int
		wantErr      bool
		wantExhaust  bool
		wantRetryCBs int
	}{
		{name: "first try", errs: nil, policy: fastPolicy(3), wantCalls: 1},
		{name: "recovers", errs: []error{errors.New("503 service unavailable")}, policy: fastPolicy(3), wantCalls: 2, wantRetryCBs: 1},
		{name: "non retryable stops", errs: []error{errors.New("401 unauthorized")}, policy: fastPolicy(3), wantCalls: 1, wantErr: true},
		{
			name:        "exhausted",
			errs:        []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
			policy:      fastPolicy(2),
			wantCalls:   3,
			wantErr:     true,
			wantExhaust: true, wantRetryCBs: 2,
		},
		{
			name:        "maybe class is capped",
			errs:        []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded},
			policy:      fastPolicy(5),
			wantCalls:   3,
			wantErr:     true,
			wantExhaust: true, wantRetryCBs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, retries := 0, 0
			_, err := RetryWithPolicy(context.Background(), tt.policy,
				func(context.Context) (string, error) {
					calls++
					if calls <= len(tt.errs) {
						return "", tt.errs[calls-1]
					}
					return "ok", nil
				},
				ClassifyLLMError,
				func(int, time.Duration, error) { retries++ },
			)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if IsRetryExhausted(err) != tt.wantExhaust {
				t.Errorf("IsRetryExhausted = %v, want %v", IsRetryExhausted(err), tt.wantExhaust)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if retries != tt.wantRetryCBs {
				t.Errorf("retry callbacks = %d, want %d", retries, tt.wantRetryCBs)
			}
		})
	}
}

func TestRetryWithPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	done := make(chan error, 1)
	go func() {
		_, err := RetryWithPolicy(ctx, policy,
			func(context.Context) (int, error) { return 0, errors.New("503 service unavailable") },
			ClassifyLLMError, nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestCalculateDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	if got := calculateDelay(policy, 0, errors.New("x")); got != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %v", got)
	}
	if got := calculateDelay(policy, 2, errors.New("x")); got != 400*time.Millisecond {
		t.Errorf("attempt 2 delay = %v", got)
	}
	if got := calculateDelay(policy, 10, errors.New("x")); got != time.Second {
		t.Errorf("capped delay = %v", got)
	}
	hinted := WrapLLMError(errors.New("429"), 429, "30")
	if got := calculateDelay(policy, 0, hinted); got != time.Second {
		t.Errorf("retry-after delay should be capped at MaxDelay, got %v", got)
	}

	policy.Jitter = true
	for i := 0; i < 20; i++ {
		got := calculateDelay(policy, 0, errors.New("x"))
		if got < 100*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms,120ms]", got)
		}
	}
}

func TestRetryInferenceAppliesPerCallTimeout(t *testing.T) {
	gw := &scriptedGateway{block: make(chan struct{})}
	start := time.Now()
	_, err := RetryInference(context.Background(), RetryPolicy{}, gw, ChatRequest{}, 20*time.Millisecond, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("per-call timeout not applied")
	}
}
