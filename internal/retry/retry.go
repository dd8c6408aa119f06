package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retried call. Attempt N (starting at 1) waits Base·2^N before
// the next attempt, capped at Max when Max is set.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// Exponential is the default base-2 policy with one second as the unit.
func Exponential(attempts int) Policy {
	return Policy{Attempts: attempts, Base: time.Second}
}

// Fixed waits the same delay between every attempt.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Base: delay, Max: delay}
}

// Delay returns the wait after the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := p.Base * time.Duration(1<<attempt)
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Sleep waits for d or until ctx is done. Tests replace it.
var Sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a permanent error, or the attempts run out.
// The error of the last attempt is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		if serr := Sleep(ctx, p.Delay(attempt)); serr != nil {
			return fmt.Errorf("%w (last error: %v)", serr, err)
		}
	}
	return err
}
