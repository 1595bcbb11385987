// Package enrich turns article bylines into validated contact records, looking
// each unique (author, domain) pair up exactly once.
package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/shpitdev/byline-enricher/internal/article"
	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/internal/lookup"
	"github.com/shpitdev/byline-enricher/internal/metrics"
	"github.com/shpitdev/byline-enricher/internal/validate"
)

// EmailValidator is satisfied by *validate.Validator.
type EmailValidator interface {
	Validate(ctx context.Context, email string, allowSMTP bool) validate.Result
}

type Options struct {
	// SMTP enables the mailbox check stage of validation.
	SMTP    bool
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

type Orchestrator struct {
	lookup    lookup.Lookuper
	validator EmailValidator
	smtp      bool
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

func New(l lookup.Lookuper, v EmailValidator, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		lookup:    l,
		validator: v,
		smtp:      opts.SMTP,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Summary counts lookup outcomes for one Enrich call.
type Summary struct {
	Keys        int
	Found       int
	NotFound    int
	Unreachable int
	Skipped     int
	ValidEmails int
}

// Enrich returns one contact per unique lookup key, in first-seen order.
func (o *Orchestrator) Enrich(ctx context.Context, articles []article.Record) []contact.Record {
	out, _ := o.EnrichWithStats(ctx, articles)
	return out
}

// EnrichWithStats is Enrich plus outcome counts. Cancellation stops the loop
// and returns what was collected so far.
func (o *Orchestrator) EnrichWithStats(ctx context.Context, articles []article.Record) ([]contact.Record, Summary) {
	keys := make([]contact.Key, 0, len(articles))
	for _, a := range articles {
		keys = append(keys, a.ContactKey())
	}
	keys = contact.UniqueKeys(keys)

	sum := Summary{Keys: len(keys)}
	o.logger.Info("enriching bylines", zap.Int("articles", len(articles)), zap.Int("unique_authors", len(keys)))

	out := make([]contact.Record, 0, len(keys))
	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("enrichment interrupted", zap.Int("done", i), zap.Int("total", len(keys)), zap.Error(err))
			break
		}

		res := o.lookup.Lookup(ctx, k.Name, k.Domain)
		switch res.Status {
		case contact.StatusSkipped:
			sum.Skipped++
			continue
		case contact.StatusFound:
			sum.Found++
		case contact.StatusNotFound:
			sum.NotFound++
		case contact.StatusUnreachable:
			sum.Unreachable++
		}

		rec := res.Contact
		if rec.HasEmail() && o.validator != nil {
			rec.Validation = o.validateEmail(ctx, rec.Email)
			if rec.Validation.Valid {
				sum.ValidEmails++
			}
		}
		out = append(out, rec)
	}

	o.logger.Info("enrichment complete",
		zap.Int("contacts", len(out)),
		zap.Int("found", sum.Found),
		zap.Int("not_found", sum.NotFound),
		zap.Int("unreachable", sum.Unreachable),
		zap.Int("valid_emails", sum.ValidEmails))
	return out, sum
}

func (o *Orchestrator) validateEmail(ctx context.Context, email string) contact.Validation {
	r := o.validator.Validate(ctx, email, o.smtp)

	o.metrics.Validation("syntax", contact.TriOf(r.SyntaxValid).String())
	if r.SyntaxValid {
		o.metrics.Validation("mx", contact.TriOf(r.MXValid).String())
	}
	if o.smtp && r.MXValid {
		o.metrics.Validation("smtp", triLabel(r.SMTPValid))
	}
	if !r.Valid {
		o.logger.Info("email failed validation", zap.String("email", email), zap.String("reason", r.Reason))
	}

	return contact.Validation{
		Checked:     true,
		SyntaxValid: r.SyntaxValid,
		MXValid:     r.MXValid,
		SMTPValid:   r.SMTPValid,
		Valid:       r.Valid,
		Reason:      r.Reason,
	}
}

func triLabel(t contact.Tri) string {
	if t == contact.Unknown {
		return "unknown"
	}
	return t.String()
}
