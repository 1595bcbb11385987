// Package retry provides a bounded retry policy with pluggable backoff and sleep.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy bounds how often an operation is attempted.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// Backoff returns the delay after the failed attempt with the given zero-based index.
	Backoff func(attempt int) time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
	// Sleep waits between attempts. Tests inject a recorder here.
	Sleep Sleeper
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = Exponential(200*time.Millisecond, 2*time.Second, 0)
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. It reports how many attempts were made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt, lastErr
			}
			return attempt, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return attempt + 1, err
		}
		if !p.Retryable(err) || attempt+1 >= p.MaxAttempts {
			return attempt + 1, err
		}
		if err := p.Sleep(ctx, p.Backoff(attempt)); err != nil {
			return attempt + 1, lastErr
		}
	}
	return p.MaxAttempts, lastErr
}

// Exponential doubles base per attempt up to max. jitterFrac applies +/- jitter
// (0.2 = +/-20%); zero disables it.
func Exponential(base, max time.Duration, jitterFrac float64) func(int) time.Duration {
	return func(attempt int) time.Duration {
		sleep := base
		for i := 0; i < attempt && (max <= 0 || sleep < max); i++ {
			sleep *= 2
		}
		if max > 0 && sleep > max {
			sleep = max
		}
		if jitterFrac <= 0 {
			return sleep
		}
		j := 1 + (rand.Float64()*2-1)*jitterFrac
		return time.Duration(float64(sleep) * j)
	}
}

// IsTransient reports whether err is worth retrying: explicit TransientError
// wrappers, deadline overruns and network timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rl *core.RateLimitError
	if errors.As(err, &rl) {
		return false
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
