// Package retry re-runs a whole fallible operation with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultAttempts = 3
	DefaultUnit     = time.Second
)

// Policy configures Do. The wait before attempt n+1 is Unit * 2^(n-1).
type Policy struct {
	Name     string
	Attempts int
	Unit     time.Duration
	Logger   *slog.Logger
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func Default(name string) Policy {
	return Policy{Name: name, Attempts: DefaultAttempts, Unit: DefaultUnit}
}

// Do runs op until it succeeds or the attempts are exhausted. The error of the
// final attempt is returned unchanged. An error reporting Transient() == false
// ends the loop at once; any other error is retried.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Unit <= 0 {
		p.Unit = DefaultUnit
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Unit
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Unit << uint(p.Attempts)
	b.Reset()

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := op(ctx)
		if err != nil && !transient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("attempt failed, retrying", "op", p.Name, "attempt", attempt, "wait", wait, "error", err)
			if p.OnRetry != nil {
				p.OnRetry(attempt, err, wait)
			}
		}),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		// Retry hands the wrapper back when the last try was permanent.
		err = permanent.Unwrap()
	}
	if err != nil {
		logger.Error("all attempts failed", "op", p.Name, "attempts", attempt, "error", err)
	}
	return res, err
}

func transient(err error) bool {
	var t interface{ Transient() bool }
	if errors.As(err, &t) {
		return t.Transient()
	}
	return true
}
