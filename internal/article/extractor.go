package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/redact"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/retry"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/worker"
)

// Extractor turns a URL into an article record. Any error means "skip this URL".
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (Record, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, rawURL string) (Record, error)

func (f ExtractorFunc) Extract(ctx context.Context, rawURL string) (Record, error) {
	return f(ctx, rawURL)
}

const maxArticleBytes = 10 << 20

// ReadabilityExtractor fetches a page and parses it with go-readability.
type ReadabilityExtractor struct {
	HTTP      *http.Client
	UserAgent string
}

// NewReadabilityExtractor builds an extractor with its own HTTP client.
func NewReadabilityExtractor(timeout time.Duration) *ReadabilityExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ReadabilityExtractor{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: "byline-enricher/1.0",
	}
}

func (e *ReadabilityExtractor) Extract(ctx context.Context, rawURL string) (Record, error) {
	pageURL := NormalizeURL(rawURL)
	if pageURL == "" {
		return Record{}, errors.New("empty url")
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Record{}, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Record{}, err
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return Record{}, &core.TransientError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 == 5 || resp.StatusCode == http.StatusTooManyRequests {
		return Record{}, &core.TransientError{Err: fmt.Errorf("fetch %s: status %s", pageURL, resp.Status)}
	}
	if resp.StatusCode/100 != 2 {
		return Record{}, fmt.Errorf("fetch %s: status %s", pageURL, resp.Status)
	}

	parsedArticle, err := readability.FromReader(io.LimitReader(resp.Body, maxArticleBytes), parsed)
	if err != nil {
		return Record{}, fmt.Errorf("readability extraction failed: %w", err)
	}

	rec := Record{
		URL:          pageURL,
		Title:        strings.TrimSpace(parsedArticle.Title),
		Author:       JoinAuthors(splitByline(parsedArticle.Byline)),
		SourceDomain: DomainFromURL(pageURL),
		Language:     strings.TrimSpace(parsedArticle.Language),
		Description:  strings.TrimSpace(parsedArticle.Excerpt),
	}
	if parsedArticle.PublishedTime != nil {
		rec.PublishDate = parsedArticle.PublishedTime.UTC().Format(time.DateTime)
	}
	return rec, nil
}

// splitByline breaks "By Jane Doe and John Roe" into individual names.
func splitByline(byline string) []string {
	b := strings.TrimSpace(byline)
	if len(b) > 3 && strings.EqualFold(b[:3], "by ") {
		b = b[3:]
	}
	b = strings.ReplaceAll(b, " and ", ",")
	b = strings.ReplaceAll(b, " & ", ",")
	return strings.Split(b, ",")
}

// ExtractOptions controls the extraction fan-out.
type ExtractOptions struct {
	Workers     int
	Timeout     time.Duration
	MaxAttempts int
	// RateLimitRPS caps page fetches per second across all workers; <=0 disables.
	RateLimitRPS float64
	// FailFast aborts the whole extraction on the first failed URL.
	FailFast bool
}

// ExtractAll extracts every URL with a bounded worker pool. Failed URLs are
// logged and skipped unless FailFast is set; the returned records keep input
// order. Duplicate URLs are extracted once.
func ExtractAll(ctx context.Context, urls []string, ex Extractor, opts ExtractOptions, logger *zap.Logger) ([]Record, int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}

	unique := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		n := NormalizeURL(u)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}

	policy := worker.FailurePolicyPartialOutput
	if opts.FailFast {
		policy = worker.FailurePolicyFailFast
	}

	var done, failed int
	results, err := worker.ProcessAllWithCallback(ctx, unique, ex.Extract,
		func(res worker.Result[string, Record]) error {
			done++
			if res.Err != nil {
				failed++
				logger.Warn("article extraction failed",
					zap.String("url", res.Input),
					zap.Int("attempts", res.Attempts),
					zap.Int("done", done),
					zap.Int("total", len(unique)),
					zap.String("error", redact.Secrets(res.Err.Error())),
				)
				return nil
			}
			logger.Info("article extracted",
				zap.String("url", res.Input),
				zap.String("author", res.Output.Author),
				zap.String("source_domain", res.Output.SourceDomain),
				zap.Int("done", done),
				zap.Int("total", len(unique)),
			)
			return nil
		},
		worker.Options{
			Workers:        opts.Workers,
			RequestTimeout: opts.Timeout,
			RateLimitRPS:   opts.RateLimitRPS,
			FailurePolicy:  policy,
			Retry: retry.Policy{
				MaxAttempts: opts.MaxAttempts,
				Backoff:     retry.Exponential(500*time.Millisecond, 4*time.Second, 0.2),
			},
		})
	if err != nil {
		return nil, failed, fmt.Errorf("fail-fast: %w", err)
	}

	out := make([]Record, 0, len(results))
	for _, res := range results {
		if res.Err == nil {
			out = append(out, res.Output)
		}
	}
	return out, failed, nil
}
