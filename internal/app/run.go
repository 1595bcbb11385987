// Package app wires one enrichment run: extract, enrich, export.
package app

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/byline-enricher/internal/article"
	"github.com/shpitdev/byline-enricher/internal/config"
	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/internal/enrich"
	"github.com/shpitdev/byline-enricher/internal/export"
	"github.com/shpitdev/byline-enricher/internal/lookup"
	"github.com/shpitdev/byline-enricher/internal/lookup/gemini"
	"github.com/shpitdev/byline-enricher/internal/metrics"
	"github.com/shpitdev/byline-enricher/internal/validate"
	"github.com/shpitdev/byline-enricher/internal/version"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
)

// MetricsFileName is written next to the other artifacts when metrics are on.
const MetricsFileName = "metrics.prom"

// Inputs are the article sources of a run. URLs are extracted first; Articles
// are already extracted records (for example from a CSV) and are appended
// after them.
type Inputs struct {
	URLs     core.Source[string]
	Articles core.Source[article.Record]
}

// Deps overrides the collaborators built from config. Nil fields are built
// from cfg.
type Deps struct {
	Extractor article.Extractor
	Lookuper  lookup.Lookuper
	Validator enrich.EmailValidator
	Now       func() time.Time
}

// Report summarizes a finished run.
type Report struct {
	RunID         string
	Articles      int
	ExtractFailed int
	Enrich        enrich.Summary
	Artifacts     export.Artifacts
	MetricsFile   string
	Duration      time.Duration
}

// Run executes one run end to end. Only input, configuration and export
// failures are returned; lookup and validation problems are logged and
// folded into the output.
func Run(ctx context.Context, cfg config.Config, in Inputs, deps Deps, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	start := deps.Now()
	rep := Report{RunID: uuid.NewString()}
	logger = logger.With(zap.String("run_id", rep.RunID))
	m := metrics.New()

	logger.Info("run start",
		zap.String("version", version.Current),
		zap.Bool("lookup_enabled", cfg.Lookup.Enabled),
		zap.String("provider", cfg.Lookup.Provider),
		zap.Bool("smtp_check", cfg.Validation.SMTP),
		zap.String("output_dir", cfg.Output.Dir))

	articles, failed, err := loadArticles(ctx, cfg, in, deps, logger)
	if err != nil {
		return rep, err
	}
	rep.Articles = len(articles)
	rep.ExtractFailed = failed
	m.Articles(len(articles), failed)

	var contacts []contact.Record
	if cfg.Lookup.Enabled {
		lk := deps.Lookuper
		if lk == nil {
			lk, err = NewLookuper(ctx, cfg, logger, m)
			if err != nil {
				return rep, err
			}
		}
		v := deps.Validator
		if v == nil {
			v = NewValidator(cfg, logger)
		}
		orch := enrich.New(lk, v, enrich.Options{SMTP: cfg.Validation.SMTP, Logger: logger, Metrics: m})
		contacts, rep.Enrich = orch.EnrichWithStats(ctx, articles)
	}

	rep.Artifacts, err = export.MergeAndExport(articles, contacts, cfg.Output.Dir, export.Options{
		BaseOnly: !cfg.Lookup.Enabled,
		XLSX:     cfg.Output.XLSX,
		Now:      deps.Now,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return rep, fmt.Errorf("export: %w", err)
	}

	if cfg.Output.Metrics {
		p := filepath.Join(cfg.Output.Dir, MetricsFileName)
		if err := m.WriteTextfile(p); err != nil {
			logger.Warn("metrics textfile not written", zap.String("path", p), zap.Error(err))
		} else {
			rep.MetricsFile = p
		}
	}

	rep.Duration = deps.Now().Sub(start)
	logger.Info("run complete",
		zap.Int("articles", rep.Articles),
		zap.Int("extract_failed", rep.ExtractFailed),
		zap.Int("contacts", len(contacts)),
		zap.Int("found", rep.Enrich.Found),
		zap.Duration("duration", rep.Duration.Round(time.Millisecond)))
	return rep, nil
}

func loadArticles(ctx context.Context, cfg config.Config, in Inputs, deps Deps, logger *zap.Logger) ([]article.Record, int, error) {
	var (
		out    []article.Record
		failed int
	)
	if in.URLs != nil {
		urls, err := in.URLs.Load(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("load urls: %w", err)
		}
		ex := deps.Extractor
		if ex == nil {
			re := article.NewReadabilityExtractor(cfg.Extract.Timeout)
			if ua := strings.TrimSpace(cfg.Extract.UserAgent); ua != "" {
				re.UserAgent = ua
			}
			ex = re
		}
		extracted, n, err := article.ExtractAll(ctx, urls, ex, article.ExtractOptions{
			Workers:      cfg.Extract.Workers,
			Timeout:      cfg.Extract.Timeout,
			MaxAttempts:  cfg.Extract.MaxAttempts,
			RateLimitRPS: cfg.Extract.RateLimitRPS,
			FailFast:     cfg.Extract.FailFast,
		}, logger)
		if err != nil {
			return nil, 0, fmt.Errorf("extract articles: %w", err)
		}
		out = append(out, extracted...)
		failed = n
	}
	if in.Articles != nil {
		recs, err := in.Articles.Load(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("load articles: %w", err)
		}
		out = append(out, recs...)
	}
	return out, failed, nil
}

// NewLookuper builds the configured lookup backend.
func NewLookuper(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Recorder) (lookup.Lookuper, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Lookup.Provider)) {
	case config.ProviderGemini:
		l, err := gemini.New(ctx, gemini.Config{
			APIKey:           cfg.Gemini.APIKey,
			Model:            cfg.Gemini.Model,
			BaseURL:          cfg.Gemini.BaseURL,
			Grounding:        cfg.Gemini.Grounding,
			MaxAttempts:      cfg.Lookup.MaxAttempts,
			BackoffBase:      cfg.Lookup.BackoffBase,
			RateLimitCeiling: cfg.Lookup.RateLimitCeiling,
			RateLimitMaxWait: cfg.Lookup.RateLimitMaxWait,
		}, logger, m)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.ProviderRocketReach, "":
		c, err := lookup.NewClient(lookup.Config{
			BaseURL:          cfg.Lookup.BaseURL,
			APIKey:           cfg.Lookup.APIKey,
			Timeout:          cfg.Lookup.Timeout,
			RateLimitRPS:     cfg.Lookup.RateLimitRPS,
			MaxAttempts:      cfg.Lookup.MaxAttempts,
			BackoffBase:      cfg.Lookup.BackoffBase,
			RateLimitCeiling: cfg.Lookup.RateLimitCeiling,
			RateLimitMaxWait: cfg.Lookup.RateLimitMaxWait,
		}, lookup.WithLogger(logger), lookup.WithMetrics(m))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown lookup provider %q", cfg.Lookup.Provider)
	}
}

// NewValidator builds the email validator on the system resolver.
func NewValidator(cfg config.Config, logger *zap.Logger) *validate.Validator {
	return validate.New(validate.Config{
		SMTPPort:    cfg.Validation.SMTPPort,
		SMTPTimeout: cfg.Validation.SMTPTimeout,
		HeloName:    cfg.Validation.HeloName,
		MailFrom:    cfg.Validation.MailFrom,
	}, net.DefaultResolver, &net.Dialer{}, logger)
}
