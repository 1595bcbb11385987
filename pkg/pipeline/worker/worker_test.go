package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/retry"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/worker"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestProcessAll_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		if calls.Add(1) <= 2 {
			return "", &core.TransientError{Err: errors.New("try again")}
		}
		return "ok", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"https://example.com/a"}, fn, worker.Options{
		Workers: 1,
		Retry:   retry.Policy{MaxAttempts: 3, Sleep: noSleep},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, "ok", out[0].Output)
	assert.Equal(t, 3, out[0].Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestProcessAll_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", errors.New("permanent")
	}

	out, err := worker.ProcessAll(context.Background(), []string{"https://example.com/a"}, fn, worker.Options{
		Workers: 1,
		Retry:   retry.Policy{MaxAttempts: 10, Sleep: noSleep},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualError(t, out[0].Err, "permanent")
	assert.EqualValues(t, 1, calls.Load())
}

func TestProcessAll_FailFastStops(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fn := func(_ context.Context, url string) (string, error) {
		calls.Add(1)
		if url == "https://bad.example.com" {
			return "", errors.New("boom")
		}
		return url, nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"https://bad.example.com", "https://good.example.com"}, fn, worker.Options{
		Workers:       1,
		FailurePolicy: worker.FailurePolicyFailFast,
	})
	require.EqualError(t, err, "boom")
	assert.Nil(t, out)
	assert.EqualValues(t, 1, calls.Load())
}

func TestProcessAll_PartialOutputKeepsInputOrder(t *testing.T) {
	t.Parallel()

	fn := func(_ context.Context, url string) (string, error) {
		if url == "b" {
			return "", errors.New("boom")
		}
		if url == "a" {
			time.Sleep(20 * time.Millisecond)
		}
		return "ok:" + url, nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"a", "b", "c"}, fn, worker.Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "ok:a", out[0].Output)
	assert.EqualError(t, out[1].Err, "boom")
	assert.Equal(t, "ok:c", out[2].Output)
}

func TestProcessAllWithCallback_SeesEveryResult(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"a", "b"},
		func(_ context.Context, in string) (string, error) { return in, nil },
		func(res worker.Result[string, string]) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, res.Input)
			return nil
		},
		worker.Options{Workers: 2},
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestProcessAllWithCallback_CallbackErrorStopsRun(t *testing.T) {
	t.Parallel()

	callbackErr := errors.New("callback failed")
	_, err := worker.ProcessAllWithCallback(
		context.Background(),
		[]string{"a"},
		func(_ context.Context, in string) (string, error) { return in, nil },
		func(worker.Result[string, string]) error { return callbackErr },
		worker.Options{Workers: 1},
	)
	assert.ErrorIs(t, err, callbackErr)
}
