package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoReturnsFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Fixed(time.Millisecond, 5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoReturnsLastFailureAfterCap(t *testing.T) {
	calls := 0
	last := errors.New("still broken")
	var waits []time.Duration

	err := Do(context.Background(), Exponential(time.Millisecond, 3*time.Millisecond, 4), func(context.Context) error {
		calls++
		return last
	}, func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	})
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
	if !errors.Is(err, last) || !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhausted error wrapping last failure, got %v", err)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", waits, want)
		}
	}
}

func TestDoValueTreatsEmptyResultAsSuccess(t *testing.T) {
	calls := 0
	ids, err := DoValue(context.Background(), Fixed(time.Millisecond, 3), func(context.Context) ([]string, error) {
		calls++
		return nil, nil
	}, nil)
	if err != nil || ids != nil {
		t.Fatalf("DoValue = %v, %v", ids, err)
	}
	if calls != 1 {
		t.Fatalf("empty result must not be retried, calls = %d", calls)
	}
}

func TestPermanentStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("bad credential")
	err := Do(context.Background(), Fixed(time.Millisecond, 10), func(context.Context) error {
		calls++
		return Permanent(fatal)
	}, nil)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, fatal) {
		t.Fatalf("expected underlying error, got %v", err)
	}
}

func TestUnboundedStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Fixed(time.Millisecond, 0), func(context.Context) error {
		calls++
		if calls == 5 {
			cancel()
		}
		return errors.New("again")
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
}
