package gemini

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
)

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return false }

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
		wantRetry     time.Duration
	}{
		{name: "nil", in: nil},
		{name: "api_429_default_wait", in: genai.APIError{Code: 429}, wantRetry: time.Minute},
		{name: "api_429_retry_info", in: genai.APIError{Code: 429, Details: []map[string]any{
			{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "27s"},
		}}, wantRetry: 27 * time.Second},
		{name: "api_503", in: genai.APIError{Code: 503}, wantTransient: true},
		{name: "api_401", in: genai.APIError{Code: 401}},
		{name: "net_timeout", in: timeoutNetErr{}, wantTransient: true},
		{name: "flattened_api_429", in: errors.New(genai.APIError{Code: 429}.Error())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in, time.Minute)
			var te *core.TransientError
			assert.Equal(t, tt.wantTransient, errors.As(got, &te))
			var rl *core.RateLimitError
			if tt.wantRetry > 0 {
				require.ErrorAs(t, got, &rl)
				assert.Equal(t, tt.wantRetry, rl.RetryAfter)
			} else {
				assert.False(t, errors.As(got, &rl))
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	d, ok := retryDelay([]map[string]any{
		{"@type": "type.googleapis.com/google.rpc.QuotaFailure"},
		{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "1.5s"},
	})
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	_, ok = retryDelay([]map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "soon"}})
	assert.False(t, ok)
	_, ok = retryDelay(nil)
	assert.False(t, ok)
}

func TestParseResponse(t *testing.T) {
	key := contact.NewKey("Jane Doe", "nyt.com")

	res, err := parseResponse(key, `{"email":"jane@nyt.com","confidence":0.82,"title":"Reporter","company":"NYT"}`)
	require.NoError(t, err)
	assert.Equal(t, contact.StatusFound, res.Status)
	assert.Equal(t, "jane@nyt.com", res.Contact.Email)
	assert.Equal(t, Source, res.Contact.Source)
	assert.InDelta(t, 0.82, res.Contact.Confidence, 1e-9)

	res, err = parseResponse(key, "```json\n{\"email\":\"\",\"confidence\":0,\"title\":\"\",\"company\":\"\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, contact.StatusNotFound, res.Status)

	res, err = parseResponse(key, "I could not find anything.")
	assert.Error(t, err)
	assert.Equal(t, contact.StatusNotFound, res.Status)
}

func TestLookup_RetriesTransientAPIErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		if !strings.Contains(r.URL.Path, "generateContent") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"email\":\"jane@nyt.com\",\"confidence\":0.9,\"title\":\"Reporter\",\"company\":\"NYT\"}"}]}}]}`))
	}))
	defer srv.Close()

	l, err := New(context.Background(), Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL}, nil, nil)
	require.NoError(t, err)
	l.WithSleeper(func(context.Context, time.Duration) error { return nil })

	res := l.Lookup(context.Background(), "Jane Doe", "www.nyt.com")
	require.Equal(t, contact.StatusFound, res.Status, "err: %v", res.Err)
	assert.Equal(t, "nyt.com", res.Contact.Domain)
	assert.Equal(t, "Reporter", res.Contact.Title)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func fakeGemini(t *testing.T, replies ...func(w http.ResponseWriter)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		n := int(calls.Add(1))
		if n <= len(replies) {
			replies[n-1](w)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"email\":\"jane@nyt.com\",\"confidence\":0.9,\"title\":\"Reporter\",\"company\":\"NYT\"}"}]}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func rateLimited(delay string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED","details":[` +
			`{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"` + delay + `"}]}}`))
	}
}

func TestLookup_RateLimitHonorsRetryInfo(t *testing.T) {
	srv, calls := fakeGemini(t, rateLimited("27s"))
	l, err := New(context.Background(), Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL}, nil, nil)
	require.NoError(t, err)
	var sleeps []time.Duration
	l.WithSleeper(func(_ context.Context, d time.Duration) error { sleeps = append(sleeps, d); return nil })

	res := l.Lookup(context.Background(), "Jane Doe", "nyt.com")
	require.Equal(t, contact.StatusFound, res.Status, "err: %v", res.Err)
	assert.Equal(t, []time.Duration{27 * time.Second}, sleeps)
	assert.EqualValues(t, 2, calls.Load())
}

func TestLookup_RateLimitBeyondCeilingAbandons(t *testing.T) {
	srv, calls := fakeGemini(t, rateLimited("7200s"))
	l, err := New(context.Background(), Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL}, nil, nil)
	require.NoError(t, err)
	var sleeps []time.Duration
	l.WithSleeper(func(_ context.Context, d time.Duration) error { sleeps = append(sleeps, d); return nil })

	res := l.Lookup(context.Background(), "Jane Doe", "nyt.com")
	assert.Equal(t, contact.StatusUnreachable, res.Status)
	assert.Empty(t, sleeps)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNew_RequiresKeyAndModel(t *testing.T) {
	_, err := New(context.Background(), Config{Model: "m"}, nil, nil)
	assert.Error(t, err)
	_, err = New(context.Background(), Config{APIKey: "k"}, nil, nil)
	assert.Error(t, err)
}
