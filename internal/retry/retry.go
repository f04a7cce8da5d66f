// Package retry implements the exponential-backoff policy shared by
// the portal client and the resource downloader. The sleep function is
// a field so tests run with zero delay.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy drives repeated attempts of a fallible operation.
type Policy struct {
	MaxAttempts int
	Backoff     func(retry int) time.Duration // retry counts from 1
	Sleep       func(time.Duration)
}

// NewPolicy returns the default policy: maxAttempts tries with
// 1s, 2s, 4s, ... waits between them.
func NewPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff,
		Sleep:       time.Sleep,
	}
}

// ExponentialBackoff returns 2^(retry-1) seconds.
func ExponentialBackoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	return time.Duration(1<<(retry-1)) * time.Second
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-transient; Do returns it without further
// attempts. Used for 4xx responses and validation rejections.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, returns a permanent error, the context
// is cancelled, or MaxAttempts is exhausted. The last error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			p.Sleep(p.Backoff(attempt - 1))
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		err = op()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
