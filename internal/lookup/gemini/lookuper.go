// Package gemini implements lookup.Lookuper with a grounded Gemini query
// instead of a people-lookup API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/internal/lookup"
	"github.com/shpitdev/byline-enricher/internal/metrics"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/retry"
)

const Source = "Gemini"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// Grounding enables the Google Search and URL context tools.
	Grounding bool

	MaxAttempts int
	BackoffBase time.Duration

	// RateLimitCeiling, RateLimitMaxWait and RetryAfterDefault mirror the
	// HTTP lookup client so both providers treat a 429 the same way.
	RateLimitCeiling  time.Duration
	RateLimitMaxWait  time.Duration
	RetryAfterDefault time.Duration
}

type Lookuper struct {
	client    *genai.Client
	model     string
	grounding  bool
	budget     lookup.Budget
	retryAfter time.Duration
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

func New(ctx context.Context, cfg Config, logger *zap.Logger, m *metrics.Recorder) (*Lookuper, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.RateLimitCeiling <= 0 {
		cfg.RateLimitCeiling = time.Hour
	}
	if cfg.RateLimitMaxWait <= 0 {
		cfg.RateLimitMaxWait = 5 * time.Minute
	}
	if cfg.RetryAfterDefault <= 0 {
		cfg.RetryAfterDefault = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Lookuper{
		client:    client,
		model:     strings.TrimSpace(cfg.Model),
		grounding: cfg.Grounding,
		budget: lookup.Budget{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     retry.Exponential(cfg.BackoffBase, 0, 0),
			Ceiling:     cfg.RateLimitCeiling,
			MaxWait:     cfg.RateLimitMaxWait,
			Sleep:       retry.Sleep,
			Logger:      logger,
			Metrics:     m,
		},
		retryAfter: cfg.RetryAfterDefault,
		logger:     logger,
		metrics:    m,
	}, nil
}

// WithSleeper replaces the backoff and rate-limit sleep, for tests.
func (l *Lookuper) WithSleeper(s retry.Sleeper) *Lookuper {
	l.budget.Sleep = s
	return l
}

type responseSchema struct {
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
	Title      string  `json:"title"`
	Company    string  `json:"company"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"email":      {Type: genai.TypeString},
		"confidence": {Type: genai.TypeNumber},
		"title":      {Type: genai.TypeString},
		"company":    {Type: genai.TypeString},
	},
	Required: []string{"email", "confidence", "title", "company"},
}

func (l *Lookuper) Lookup(ctx context.Context, fullName, domain string) lookup.Result {
	key := contact.NewKey(fullName, domain)
	if key.Empty() {
		return lookup.Result{Status: contact.StatusSkipped}
	}

	start := time.Now()
	res := l.lookup(ctx, key)
	l.metrics.ObserveLookup(res.Status.String(), res.Attempts, time.Since(start))

	if res.Status == contact.StatusUnreachable {
		l.logger.Warn("gemini lookup failed",
			zap.String("name", key.Name), zap.String("domain", key.Domain),
			zap.Int("attempts", res.Attempts), zap.Error(res.Err))
	} else {
		l.logger.Info("gemini lookup",
			zap.String("name", key.Name), zap.String("domain", key.Domain),
			zap.String("status", res.Status.String()), zap.Int("attempts", res.Attempts))
	}
	return res
}

func (l *Lookuper) lookup(ctx context.Context, key contact.Key) lookup.Result {
	cfg := &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		ResponseSchema:   outputSchema,
	}
	if l.grounding {
		// Tools and a response schema cannot be combined on every model.
		cfg.ResponseSchema = nil
		cfg.ResponseMIMEType = ""
		cfg.Tools = []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
			{URLContext: &genai.URLContext{}},
		}
	}

	var text string
	attempts, err := l.budget.Run(ctx, key, func(ctx context.Context) error {
		resp, err := l.client.Models.GenerateContent(ctx, l.model, genai.Text(buildPrompt(key)), cfg)
		if err != nil {
			return classifyErr(err, l.retryAfter)
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return lookup.Result{
			Status:   contact.StatusUnreachable,
			Contact:  contact.NewNotFound(key.Name, key.Domain, Source, contact.StatusUnreachable),
			Attempts: attempts,
			Err:      err,
		}
	}

	res, err := parseResponse(key, text)
	res.Attempts = attempts
	res.Err = err
	return res
}

// parseResponse turns model output into a result. Unparsable output means the
// service answered without a usable match.
func parseResponse(key contact.Key, text string) (lookup.Result, error) {
	notFound := lookup.Result{
		Status:  contact.StatusNotFound,
		Contact: contact.NewNotFound(key.Name, key.Domain, Source, contact.StatusNotFound),
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(stripFence(text)), &parsed); err != nil {
		return notFound, fmt.Errorf("gemini: parse structured json: %w", err)
	}
	email := strings.TrimSpace(parsed.Email)
	if email == "" || strings.EqualFold(email, contact.NotFound) {
		return notFound, nil
	}
	return lookup.Result{
		Status: contact.StatusFound,
		Contact: contact.Record{
			FullName:   key.Name,
			Email:      email,
			Confidence: lookup.NormalizeConfidence(parsed.Confidence),
			Source:     Source,
			Domain:     key.Domain,
			Title:      strings.TrimSpace(parsed.Title),
			Company:    strings.TrimSpace(parsed.Company),
			Status:     contact.StatusFound,
		},
	}, nil
}

// stripFence removes a ```json fence; grounded responses are free text.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func buildPrompt(key contact.Key) string {
	return strings.TrimSpace(`
You are a data enrichment tool. Given a journalist's name and the domain of the publication they write for, find their public work email address.

Return ONLY a single JSON object with these keys:
- email (string)
- confidence (number between 0 and 1)
- title (string; current job title)
- company (string; current employer)

Rules:
- If you cannot find an email, set email to an empty string and confidence to 0.
- Do not guess addresses from naming patterns.
- Do not include extra keys.

Name: ` + key.Name + `
Publication domain: ` + key.Domain + `
`)
}

// classifyErr maps a 429 to *core.RateLimitError, using the RetryInfo delay
// when the API sends one, and wraps other retryable failures as transient.
func classifyErr(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			if d, ok := retryDelay(apiErr.Details); ok {
				retryAfter = d
			}
			return &core.RateLimitError{RetryAfter: retryAfter, Err: err}
		case apiErr.Code/100 == 5:
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}

// retryDelay reads google.rpc.RetryInfo ("retryDelay": "27s") from error details.
func retryDelay(details []map[string]any) (time.Duration, bool) {
	for _, d := range details {
		if t, _ := d["@type"].(string); !strings.HasSuffix(t, "google.rpc.RetryInfo") {
			continue
		}
		v, _ := d["retryDelay"].(string)
		dur, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || dur < 0 {
			continue
		}
		return dur, true
	}
	return 0, false
}
