package core

import (
	"context"
	"fmt"
	"time"
)

// Source loads input records for a run.
type Source[In any] interface {
	Load(ctx context.Context) ([]In, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[In any] func(ctx context.Context) ([]In, error)

func (f SourceFunc[In]) Load(ctx context.Context) ([]In, error) {
	return f(ctx)
}

// TransientError marks an error as retryable by retry policies.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RateLimitError reports a "too many requests" response and the delay the
// remote service advised before the next attempt.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return "rate limited"
	}
	if e.Err == nil {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: retry after %s: %s", e.RetryAfter, e.Err.Error())
}

func (e *RateLimitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
