package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ccos-project/ccos-core/ccoserr"
	"github.com/ccos-project/ccos-core/ccoslog"
)

func TestCircuitBreakerOpensAfterErrorThreshold(t *testing.T) {
	cfg := Config{
		Name:             "test",
		ErrorThreshold:   0.5,
		VolumeThreshold:  5,
		SleepWindow:      100 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       time.Second,
	}
	cb := New(cfg, ccoslog.NoOp())

	if cb.state != StateClosed {
		t.Fatalf("expected initial state closed, got %s", cb.state)
	}

	for i := 0; i < 6; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error {
			return errors.New("boom")
		})
		if err == nil {
			t.Error("expected error from Execute")
		}
	}

	if cb.state != StateOpen {
		t.Fatalf("expected state open after exceeding threshold, got %s", cb.state)
	}

	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); !ccoserr.IsKind(err, ccoserr.ResourceViolation) {
		t.Errorf("expected a ResourceViolation rejection while open, got %v", err)
	}
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cfg := Config{
		Name:             "recover",
		ErrorThreshold:   0.5,
		VolumeThreshold:  2,
		SleepWindow:      50 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       time.Second,
	}
	cb := New(cfg, ccoslog.NoOp())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	}
	if cb.state != StateOpen {
		t.Fatalf("expected open, got %s", cb.state)
	}

	time.Sleep(150 * time.Millisecond)

	for i := 0; i < cfg.HalfOpenRequests; i++ {
		if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Errorf("expected success while half-open, got %v", err)
		}
	}

	if cb.state != StateClosed {
		t.Errorf("expected circuit to close after successful half-open probes, got %s", cb.state)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2,
	}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	}, func(context.Context) error {
		attempts++
		return errors.New("permanent")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRegistryReusesBreakerByName(t *testing.T) {
	r := NewRegistry(ccoslog.NoOp())
	a := r.Get("demo.capability")
	b := r.Get("demo.capability")
	if a != b {
		t.Error("expected Get to return the same breaker for the same name")
	}
}
