package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

func testConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailures(t *testing.T) {
	executor := NewExecutor(testConfig())

	calls := 0
	err := executor.Execute(context.Background(), "test.op", func(context.Context) error {
		calls++
		if calls < 3 {
			return domain.WrapError(domain.ErrTemporary, "test", errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteDoesNotRetryPermanentFailures(t *testing.T) {
	executor := NewExecutor(testConfig())

	calls := 0
	err := executor.Execute(context.Background(), "test.op", func(context.Context) error {
		calls++
		return domain.WrapError(domain.ErrInvalidInput, "test", errors.New("bad input"))
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected wrapped ErrInvalidInput, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent failure retried: %d attempts", calls)
	}
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	executor := NewExecutor(testConfig())

	calls := 0
	err := executor.Execute(context.Background(), "test.op", func(context.Context) error {
		calls++
		return domain.WrapError(domain.ErrTemporary, "test", errors.New("still down"))
	})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected final temporary error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	executor := NewExecutor(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := executor.Execute(ctx, "test.op", func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("callback ran %d times on a cancelled context", calls)
	}
}
