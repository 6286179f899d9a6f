// Package retry provides fixed-interval retry policies on top of retry-go.
//
// A Policy is a plain value (attempt bound, interval, retry predicate) and a
// Sleeper, so callers can run the same policy against a real clock in
// production and against zero-length sleeps in tests:
//
//	p := retry.Fixed(3, time.Second)
//	attempts, err := p.Do(ctx, func(attempt int) error {
//	    return load(path)
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// ErrExhausted is returned (wrapped together with the last failure) when a
// bounded policy runs out of attempts.
var ErrExhausted = errors.New("retry attempts exhausted")

// Sleeper pauses for d or until ctx is done, whichever comes first.
// It returns ctx.Err() if the context ended the wait.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep returns immediately unless the context is already done.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Policy describes a fixed-interval retry loop.
type Policy struct {
	// Attempts bounds the number of calls. Zero or negative means unbounded.
	Attempts int

	// Interval is the pause between a failed call and the next one.
	Interval time.Duration

	// Retryable reports whether a failure should be retried.
	// A nil predicate retries every failure.
	Retryable func(error) bool

	// Sleep is used between attempts. Nil means Sleep.
	Sleep Sleeper
}

// Fixed returns a bounded policy that retries every failure.
func Fixed(attempts int, interval time.Duration) Policy {
	return Policy{Attempts: attempts, Interval: interval}
}

// Forever returns an unbounded policy that retries only while retryable
// reports true.
func Forever(interval time.Duration, retryable func(error) bool) Policy {
	return Policy{Interval: interval, Retryable: retryable}
}

// WithSleeper returns a copy of p that pauses with s.
func (p Policy) WithSleeper(s Sleeper) Policy {
	p.Sleep = s
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// bound is reached or ctx is done. The attempt number passed to fn starts
// at 1. Do returns the number of calls made.
//
// On exhaustion the returned error wraps both ErrExhausted and the last
// failure. A non-retryable failure is returned as is. Cancellation during a
// pause returns the context error.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Delay(p.Interval),
		retrygo.DelayType(retrygo.FixedDelay),
		retrygo.LastErrorOnly(true),
		retrygo.WithTimer(sleepTimer{ctx: ctx, sleep: sleep}),
	}
	if p.Attempts > 0 {
		opts = append(opts, retrygo.Attempts(uint(p.Attempts)))
	} else {
		opts = append(opts, retrygo.UntilSucceeded())
	}
	if p.Retryable != nil {
		opts = append(opts, retrygo.RetryIf(p.Retryable))
	}

	var (
		calls int
		last  error
	)
	err := retrygo.Do(func() error {
		calls++
		last = fn(calls)
		return last
	}, opts...)

	switch {
	case err == nil:
		return calls, nil
	case last == nil:
		return calls, err
	case p.Retryable != nil && !p.Retryable(last):
		return calls, last
	case p.Attempts > 0 && calls >= p.Attempts:
		return calls, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, calls, last)
	default:
		// The context ended a pause.
		return calls, err
	}
}

// sleepTimer lets retry-go pause through a Sleeper. The channel never fires
// if the sleep was cut short; retry-go then observes ctx itself.
type sleepTimer struct {
	ctx   context.Context
	sleep Sleeper
}

func (t sleepTimer) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	go func() {
		if t.sleep(t.ctx, d) == nil {
			ch <- time.Now()
		}
	}()
	return ch
}
