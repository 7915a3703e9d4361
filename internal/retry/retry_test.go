package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/pslog"

	"github.com/ischyrus/lokad-cloud-storage/internal/clock"
	"github.com/ischyrus/lokad-cloud-storage/internal/retry"
)

var errTransient = errors.New("slow instantiation")
var errFatal = errors.New("fatal")

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func TestDoSucceedsAfterTransientRetries(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Now())
	attempts := 0
	done := make(chan error, 1)
	cfg := retry.Config{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}

	go func() {
		done <- retry.Do(context.Background(), clk, pslog.NoopLogger(), cfg, "enqueue", isTransient, func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errTransient
			}
			return nil
		})
	}()

	// Repeatedly nudge the manual clock forward until both backoff sleeps
	// have been satisfied and fn has run its third, successful attempt.
	deadline := time.After(time.Second)
	for attempts < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for attempts to reach 3, got %d", attempts)
		default:
		}
		clk.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoPropagatesFatalErrorImmediately(t *testing.T) {
	t.Parallel()

	attempts := 0
	cfg := retry.Config{MaxAttempts: 5, BaseDelay: time.Millisecond}
	err := retry.Do(context.Background(), clock.Real{}, pslog.NoopLogger(), cfg, "upload", isTransient, func(context.Context) error {
		attempts++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-transient error, got %d", attempts)
	}
}

func TestDoReturnsLastErrorAfterExhaustingAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	cfg := retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond}
	err := retry.Do(context.Background(), clock.Real{}, pslog.NoopLogger(), cfg, "enqueue", isTransient, func(context.Context) error {
		attempts++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clk := clock.NewManual(time.Now())
	cfg := retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}
	attempts := 0
	err := retry.Do(ctx, clk, pslog.NoopLogger(), cfg, "enqueue", isTransient, func(context.Context) error {
		attempts++
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
