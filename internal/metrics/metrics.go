// Package metrics records per-run counters on a private prometheus registry.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "byline_enricher"

// Recorder owns the collectors of one run.
type Recorder struct {
	registry *prometheus.Registry

	lookups         *prometheus.CounterVec
	lookupAttempts  prometheus.Counter
	lookupDuration  prometheus.Histogram
	rateLimitWaits  prometheus.Counter
	rateLimitWaited prometheus.Counter
	rateLimitAborts prometheus.Counter
	validations     *prometheus.CounterVec
	articles        *prometheus.CounterVec
	exportedRows    *prometheus.GaugeVec
}

// New builds a Recorder with its own registry, so concurrent runs never share
// collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Contact lookups by outcome.",
		}, []string{"status"}),
		lookupAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_attempts_total",
			Help:      "HTTP attempts issued against the lookup service.",
		}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Wall time per lookup including retries and waits.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Rate-limit responses honored with a wait.",
		}),
		rateLimitWaited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds_total",
			Help:      "Seconds spent waiting on rate limits.",
		}),
		rateLimitAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_abandoned_total",
			Help:      "Lookups abandoned because of a rate limit.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_validations_total",
			Help:      "Email validation stage results.",
		}, []string{"stage", "result"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Article extraction results.",
		}, []string{"result"}),
		exportedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exported_rows",
			Help:      "Rows written per output table.",
		}, []string{"table"}),
	}
	r.registry.MustRegister(
		r.lookups,
		r.lookupAttempts,
		r.lookupDuration,
		r.rateLimitWaits,
		r.rateLimitWaited,
		r.rateLimitAborts,
		r.validations,
		r.articles,
		r.exportedRows,
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveLookup(status string, attempts int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.lookups.WithLabelValues(status).Inc()
	r.lookupAttempts.Add(float64(attempts))
	r.lookupDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) RateLimitWait(d time.Duration) {
	if r == nil {
		return
	}
	r.rateLimitWaits.Inc()
	r.rateLimitWaited.Add(d.Seconds())
}

func (r *Recorder) RateLimitAbandoned() {
	if r == nil {
		return
	}
	r.rateLimitAborts.Inc()
}

func (r *Recorder) Validation(stage string, result string) {
	if r == nil {
		return
	}
	r.validations.WithLabelValues(stage, result).Inc()
}

func (r *Recorder) Articles(extracted, failed int) {
	if r == nil {
		return
	}
	r.articles.WithLabelValues("extracted").Add(float64(extracted))
	r.articles.WithLabelValues("failed").Add(float64(failed))
}

func (r *Recorder) ExportedRows(table string, n int) {
	if r == nil {
		return
	}
	r.exportedRows.WithLabelValues(table).Set(float64(n))
}

// WriteTextfile writes the registry in the text exposition format, for
// pickup by a node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
