package retry

import (
	"context"
	"math"
	"time"

	"liquidator/pkg/errors"
)

// Policy describes a capped exponential backoff
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy waits min(1s * 2^attempt, 10s) after each failed attempt
func DefaultPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// Window is the longest a full run can take when each attempt is bounded
// by attemptTimeout: every attempt plus every sleep between them.
func (p Policy) Window(attemptTimeout time.Duration) time.Duration {
	p = p.normalized()
	total := time.Duration(p.MaxAttempts) * attemptTimeout
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		total += p.Delay(attempt)
	}
	return total
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "retry cancelled")
	case <-t.C:
		return nil
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Do returns it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retrier runs an operation under a Policy
type Retrier struct {
	policy Policy
	sleep  SleepFunc
}

func New(policy Policy, sleep SleepFunc) *Retrier {
	if sleep == nil {
		sleep = Sleep
	}
	return &Retrier{policy: policy.normalized(), sleep: sleep}
}

func (r *Retrier) Policy() Policy { return r.policy }

// Do calls fn up to MaxAttempts times, sleeping Delay(attempt) between failures
// (never after the last one). It returns the number of attempts made and the
// last error. Permanent errors stop the loop and are returned unwrapped.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return attempt, p.err
		}
		lastErr = err

		if attempt == r.policy.MaxAttempts {
			break
		}

		if err := r.sleep(ctx, r.policy.Delay(attempt)); err != nil {
			return attempt, errors.Join(lastErr, err)
		}
	}

	return r.policy.MaxAttempts, errors.Wrapf(lastErr, "failed after %d attempts", r.policy.MaxAttempts)
}
