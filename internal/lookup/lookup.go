// Package lookup resolves an author name and publication domain to a contact
// through an external people-lookup service.
package lookup

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/byline-enricher/internal/contact"
)

// Lookuper is what the orchestrator needs from a lookup backend.
// Implementations never return errors; failures are folded into Result.Status.
type Lookuper interface {
	Lookup(ctx context.Context, fullName, domain string) Result
}

// Result is the outcome of one lookup. Contact is the zero value when
// Status is contact.StatusSkipped.
type Result struct {
	Status   contact.Status
	Contact  contact.Record
	Attempts int
	// Err is the last failure seen, kept for logging only.
	Err error
}

// NormalizeConfidence maps a service score into [0,1]. Scores above 1 are
// read as percentages.
func NormalizeConfidence(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return math.Min(v, 1)
}

// ParseRetryAfter reads a Retry-After header as delta seconds or an HTTP
// date. Missing or unparsable values yield def.
func ParseRetryAfter(v string, now time.Time, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs < 0 {
			return 0
		}
		if secs > math.MaxInt64/int64(time.Second) {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return def
}
