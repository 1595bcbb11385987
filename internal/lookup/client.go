package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/internal/metrics"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/retry"
)

const (
	DefaultBaseURL = "https://api.rocketreach.co/api/v2"
	DefaultSource  = "RocketReach"

	lookupPath   = "profile-company/lookup"
	maxBodyBytes = 1 << 20
)

// Config tunes the HTTP lookup client.
type Config struct {
	BaseURL string
	APIKey  string
	// Source is stamped on every record this client produces.
	Source string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// RateLimitRPS paces outgoing requests; zero disables pacing.
	RateLimitRPS float64

	MaxAttempts int
	BackoffBase time.Duration

	// RateLimitCeiling is the longest advised wait still worth honoring.
	RateLimitCeiling time.Duration
	// RateLimitMaxWait caps how long a single honored wait lasts.
	RateLimitMaxWait time.Duration
	// RetryAfterDefault applies when a 429 carries no usable Retry-After.
	RetryAfterDefault time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(c.Source) == "" {
		c.Source = DefaultSource
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.RateLimitCeiling <= 0 {
		c.RateLimitCeiling = time.Hour
	}
	if c.RateLimitMaxWait <= 0 {
		c.RateLimitMaxWait = 5 * time.Minute
	}
	if c.RetryAfterDefault <= 0 {
		c.RetryAfterDefault = 60 * time.Second
	}
	return c
}

// Client queries the people-lookup API. It is safe for concurrent use but the
// orchestrator calls it sequentially.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	sleep   retry.Sleeper
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSleeper replaces the real-time sleep used for backoff and rate-limit waits.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient validates cfg and builds a client. The API key is required.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("lookup api key is required")
	}
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		sleep:  retry.Sleep,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	if cfg.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse lookup base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("lookup base URL must include a host (got %q)", raw)
	}
	// Trailing slash so ResolveReference keeps the version prefix.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// Lookup never returns an error: every failure becomes a NotFound or
// Unreachable result so one bad author cannot stop the run.
func (c *Client) Lookup(ctx context.Context, fullName, domain string) Result {
	key := contact.NewKey(fullName, domain)
	if key.Empty() {
		c.logger.Warn("lookup skipped: missing name or domain",
			zap.String("name", key.Name), zap.String("domain", key.Domain))
		return Result{Status: contact.StatusSkipped}
	}

	start := c.now()
	res := c.lookup(ctx, key)
	c.metrics.ObserveLookup(res.Status.String(), res.Attempts, c.now().Sub(start))

	fields := []zap.Field{
		zap.String("name", key.Name),
		zap.String("domain", key.Domain),
		zap.String("status", res.Status.String()),
		zap.Int("attempts", res.Attempts),
	}
	switch res.Status {
	case contact.StatusFound:
		c.logger.Info("contact found", append(fields, zap.Float64("confidence", res.Contact.Confidence))...)
	case contact.StatusNotFound:
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		c.logger.Info("no contact match", fields...)
	default:
		c.logger.Warn("lookup service unreachable", append(fields, zap.Error(res.Err))...)
	}
	return res
}

var errNoMatch = errors.New("no match")

func (c *Client) lookup(ctx context.Context, key contact.Key) Result {
	budget := Budget{
		MaxAttempts: c.cfg.MaxAttempts,
		Backoff:     retry.Exponential(c.cfg.BackoffBase, 0, 0),
		Ceiling:     c.cfg.RateLimitCeiling,
		MaxWait:     c.cfg.RateLimitMaxWait,
		Sleep:       c.sleep,
		Logger:      c.logger,
		Metrics:     c.metrics,
	}

	var body lookupResponse
	total, err := budget.Run(ctx, key, func(ctx context.Context) error {
		body = lookupResponse{}
		return c.do(ctx, key, &body)
	})

	switch {
	case err == nil:
		return c.interpret(key, body, total)

	case errors.Is(err, errNoMatch):
		return Result{
			Status:   contact.StatusNotFound,
			Contact:  contact.NewNotFound(key.Name, key.Domain, c.cfg.Source, contact.StatusNotFound),
			Attempts: total,
		}

	case errors.Is(err, errMalformed):
		return Result{
			Status:   contact.StatusNotFound,
			Contact:  contact.NewNotFound(key.Name, key.Domain, c.cfg.Source, contact.StatusNotFound),
			Attempts: total,
			Err:      err,
		}

	default:
		return Result{
			Status:   contact.StatusUnreachable,
			Contact:  contact.NewNotFound(key.Name, key.Domain, c.cfg.Source, contact.StatusUnreachable),
			Attempts: total,
			Err:      err,
		}
	}
}

var errMalformed = errors.New("malformed lookup response")

// do issues one request. It classifies the response into nil (200 decoded
// into out), errNoMatch, errMalformed, *core.RateLimitError or a transient error.
func (c *Client) do(ctx context.Context, key contact.Key, out *lookupResponse) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := c.base.ResolveReference(&url.URL{Path: lookupPath})
	q := u.Query()
	q.Set("name", key.Name)
	q.Set("current_employer", key.Domain)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &core.TransientError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &core.TransientError{Err: fmt.Errorf("read lookup response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &core.RateLimitError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), c.now(), c.cfg.RetryAfterDefault),
			Err:        newHTTPError("lookup", resp, b),
		}
	case resp.StatusCode == http.StatusNotFound:
		return errNoMatch
	default:
		return &core.TransientError{Err: newHTTPError("lookup", resp, b)}
	}
}

type lookupResponse struct {
	Person *personPayload `json:"person"`
	// Some API versions return the profile at the top level.
	personPayload
}

type personPayload struct {
	Name            string         `json:"name"`
	CurrentTitle    string         `json:"current_title"`
	CurrentEmployer string         `json:"current_employer"`
	CurrentCompany  string         `json:"current_company"`
	Emails          []emailPayload `json:"emails"`
}

type emailPayload struct {
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
}

func (r lookupResponse) person() *personPayload {
	if r.Person != nil {
		return r.Person
	}
	if len(r.Emails) > 0 {
		return &r.personPayload
	}
	return nil
}

func (c *Client) interpret(key contact.Key, body lookupResponse, attempts int) Result {
	p := body.person()
	if p == nil || len(p.Emails) == 0 || strings.TrimSpace(p.Emails[0].Email) == "" {
		return Result{
			Status:   contact.StatusNotFound,
			Contact:  contact.NewNotFound(key.Name, key.Domain, c.cfg.Source, contact.StatusNotFound),
			Attempts: attempts,
		}
	}

	company := strings.TrimSpace(p.CurrentEmployer)
	if company == "" {
		company = strings.TrimSpace(p.CurrentCompany)
	}
	first := p.Emails[0]
	return Result{
		Status: contact.StatusFound,
		Contact: contact.Record{
			FullName:   key.Name,
			Email:      strings.TrimSpace(first.Email),
			Confidence: NormalizeConfidence(first.Confidence),
			Source:     c.cfg.Source,
			Domain:     key.Domain,
			Title:      strings.TrimSpace(p.CurrentTitle),
			Company:    company,
			Status:     contact.StatusFound,
		},
		Attempts: attempts,
	}
}
