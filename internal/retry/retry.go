// Package retry runs fallible operations under bounded, increasing delays.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a retry schedule. A Multiplier of 1 or less yields a fixed
// interval; MaxAttempts of 0 retries until the context ends.
type Policy struct {
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
}

// Exponential returns a doubling policy starting at initial and capped at maxDelay.
func Exponential(initial, maxDelay time.Duration, attempts int) Policy {
	return Policy{InitialDelay: initial, MaxDelay: maxDelay, Multiplier: 2, MaxAttempts: attempts}
}

// Fixed returns a constant-interval policy.
func Fixed(interval time.Duration, attempts int) Policy {
	return Policy{InitialDelay: interval, MaxDelay: interval, Multiplier: 1, MaxAttempts: attempts}
}

// Once runs the operation a single time.
func Once() Policy { return Policy{MaxAttempts: 1} }

// Notify is called before each wait with the attempt that just failed.
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err so that no further attempts are made.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// ErrExhausted wraps the last failure once all attempts are used.
var ErrExhausted = errors.New("retry attempts exhausted")

func (p Policy) backOff() backoff.BackOff {
	maxDelay := p.MaxDelay
	if maxDelay < p.InitialDelay {
		maxDelay = p.InitialDelay
	}

	var b backoff.BackOff
	if p.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(p.InitialDelay)
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.InitialDelay
		eb.MaxInterval = maxDelay
		eb.Multiplier = p.Multiplier
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}

	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}

// Do runs op until it succeeds, the policy is exhausted, or ctx ends.
func Do(ctx context.Context, p Policy, op func(context.Context) error, notify Notify) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, notify)
	return err
}

// DoValue is Do for operations that produce a value. A successful call that
// returns an empty value is still a success.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), notify Notify) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		return op(ctx)
	}
	onRetry := func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	}

	v, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(p.backOff(), ctx), onRetry)
	if err == nil {
		return v, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return v, err
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return v, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}
	return v, err
}
