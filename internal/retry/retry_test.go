package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bryan-buckman/dealscout/internal/retry"
)

var errTransient = errors.New("transient")

func recordSleeps(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	var waits []time.Duration
	p := retry.Policy{
		MaxRetries: 3,
		Backoff:    retry.Exponential(time.Second, time.Minute),
		Sleep:      recordSleeps(&waits),
	}
	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(waits) != len(want) || waits[0] != want[0] || waits[1] != want[1] {
		t.Fatalf("unexpected waits %v, want %v", waits, want)
	}
}

func TestDoStopsAtMaxRetries(t *testing.T) {
	var waits []time.Duration
	p := retry.Policy{MaxRetries: 3, Sleep: recordSleeps(&waits)}
	attempts, err := p.Do(context.Background(), func(context.Context) error { return errTransient })
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 1 attempt + 3 retries, got %d", attempts)
	}
	if len(waits) != 3 {
		t.Fatalf("expected 3 sleeps, got %d", len(waits))
	}
}

func TestDoSkipsNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	p := retry.Policy{
		MaxRetries: 3,
		Retryable:  func(err error) bool { return !errors.Is(err, fatal) },
		Sleep:      func(context.Context, time.Duration) error { t.Fatal("unexpected sleep"); return nil },
	}
	attempts, err := p.Do(context.Background(), func(context.Context) error { return fatal })
	if attempts != 1 || !errors.Is(err, fatal) {
		t.Fatalf("got attempts=%d err=%v", attempts, err)
	}
}

func TestDoHonoursCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := retry.Policy{MaxRetries: 5, Backoff: retry.Exponential(time.Hour, time.Hour)}
	attempts, err := p.Do(ctx, func(context.Context) error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExponentialCaps(t *testing.T) {
	b := retry.Exponential(time.Second, 5*time.Second)
	got := []time.Duration{b(1, nil), b(2, nil), b(3, nil), b(4, nil)}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("attempt %d: got %v, want %v", i+1, got[i], want[i])
		}
	}
}
