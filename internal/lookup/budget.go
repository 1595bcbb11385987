package lookup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/internal/metrics"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/retry"
)

// Budget is the attempt and rate-limit policy shared by lookup backends.
//
// Transient failures are retried with Backoff until MaxAttempts requests
// have been charged. A *core.RateLimitError is honored once: the advised
// wait is capped at MaxWait and the request answered by that 429 is not
// charged. Advice above Ceiling, or a second 429, abandons the lookup.
type Budget struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Ceiling     time.Duration
	MaxWait     time.Duration
	Sleep       retry.Sleeper
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
}

// Run calls fn under the budget and returns the number of requests made and
// the error of the last one.
func (b Budget) Run(ctx context.Context, key contact.Key, fn func(ctx context.Context) error) (int, error) {
	if b.Sleep == nil {
		b.Sleep = retry.Sleep
	}
	if b.Logger == nil {
		b.Logger = zap.NewNop()
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 1
	}
	if b.Backoff == nil {
		b.Backoff = retry.Exponential(time.Second, 0, 0)
	}
	policy := retry.Policy{Retryable: retry.IsTransient, Sleep: b.Sleep}

	var (
		total, used int
		lastErr     error
		waitedOnce  bool
	)
	for used < b.MaxAttempts {
		offset := used
		policy.MaxAttempts = b.MaxAttempts - used
		policy.Backoff = func(attempt int) time.Duration { return b.Backoff(attempt + offset) }

		n, err := policy.Do(ctx, func(ctx context.Context, _ int) error { return fn(ctx) })
		total += n
		used += n
		lastErr = err

		var rl *core.RateLimitError
		if !errors.As(err, &rl) {
			return total, err
		}
		if rl.RetryAfter > b.Ceiling {
			b.Metrics.RateLimitAbandoned()
			b.Logger.Warn("rate limit wait exceeds ceiling, abandoning lookup",
				zap.String("name", key.Name),
				zap.Duration("retry_after", rl.RetryAfter),
				zap.Duration("ceiling", b.Ceiling))
			return total, err
		}
		if waitedOnce {
			b.Metrics.RateLimitAbandoned()
			b.Logger.Warn("rate limited again after waiting, abandoning lookup", zap.String("name", key.Name))
			return total, err
		}
		wait := min(rl.RetryAfter, b.MaxWait)
		b.Logger.Warn("rate limited, waiting before retry",
			zap.String("name", key.Name),
			zap.Duration("retry_after", rl.RetryAfter),
			zap.Duration("wait", wait))
		if serr := b.Sleep(ctx, wait); serr != nil {
			return total, err
		}
		b.Metrics.RateLimitWait(wait)
		waitedOnce = true
		used--
	}
	return total, lastErr
}
