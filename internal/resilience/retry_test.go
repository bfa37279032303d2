package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/aws/smithy-go"
)

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return nil
	}, nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_OnceThenGiveUp(t *testing.T) {
	attempts := 0
	transient := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	err := Retry(context.Background(), RetryOnce(time.Millisecond), func(ctx context.Context) error {
		attempts++
		return transient
	}, IsTransient)

	if attempts != 2 {
		t.Errorf("Expected exactly 2 attempts, got %d", attempts)
	}
	if !errors.Is(err, transient) {
		t.Errorf("Expected last error to be returned, got %v", err)
	}
}

func TestRetry_NonTransientNotRetried(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryOnce(time.Millisecond), func(ctx context.Context) error {
		attempts++
		return errors.New("invalid voice")
	}, IsTransient)

	if err == nil {
		t.Error("Expected an error")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour}, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("boom")
	}, nil)

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if err == nil || err.Error() != "boom" {
		t.Errorf("Expected last error boom, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, true},
		{"unavailable", fmt.Errorf("polly: %w", &smithy.GenericAPIError{Code: "ServiceUnavailableException"}), true},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException"}, false},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"etimedout", syscall.ETIMEDOUT, true},
		{"http 429", &StatusError{StatusCode: 429}, true},
		{"http 400", &StatusError{StatusCode: 400}, false},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("bad input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := CalculateBackoff(0, 100*time.Millisecond, time.Second, 2); got != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got %v", got)
	}
	if got := CalculateBackoff(2, 100*time.Millisecond, time.Second, 2); got != 400*time.Millisecond {
		t.Errorf("Expected 400ms, got %v", got)
	}
	if got := CalculateBackoff(10, 100*time.Millisecond, time.Second, 2); got != time.Second {
		t.Errorf("Expected cap of 1s, got %v", got)
	}
}

func TestReconnect_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Reconnect(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("refused")
		}
		return nil
	}, ReconnectConfig{MaxAttempts: 5, Backoff: time.Millisecond, Multiplier: 1})

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestReconnect_GivesUp(t *testing.T) {
	err := Reconnect(context.Background(), "test", func(ctx context.Context) error {
		return errors.New("refused")
	}, ReconnectConfig{MaxAttempts: 2, Backoff: time.Millisecond, Multiplier: 1})
	if err == nil {
		t.Error("Expected an error after exhausting attempts")
	}
}
