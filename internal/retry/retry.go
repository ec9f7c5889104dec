// Package retry provides the reconnect schedule shared by the broker and
// database loops. Retries never give up on their own; only the context stops them.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults reproduce a fixed five second reconnect delay.
const (
	DefaultInitial    = 5 * time.Second
	DefaultMax        = 5 * time.Second
	DefaultMultiplier = 1.0
)

// Policy configures the delay between attempts. A Multiplier of 1 yields a
// fixed delay; larger values grow the delay up to Max.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultPolicy returns the fixed five second schedule.
func DefaultPolicy() Policy {
	return Policy{Initial: DefaultInitial, Max: DefaultMax, Multiplier: DefaultMultiplier}
}

// BackOff builds an unbounded backoff.BackOff for the policy.
func (p Policy) BackOff() backoff.BackOff {
	initial := p.Initial
	if initial <= 0 {
		initial = DefaultInitial
	}
	maxDelay := p.Max
	if maxDelay < initial {
		maxDelay = initial
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxDelay
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Forever calls op until it succeeds or ctx is cancelled. notify, when set, is
// invoked after every failed attempt with the delay before the next one.
func Forever(ctx context.Context, p Policy, op func(context.Context) error, notify func(error, time.Duration)) error {
	b := backoff.WithContext(p.BackOff(), ctx)
	return backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(ctx)
	}, b, notify)
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
