package export

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/byline-enricher/internal/article"
	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/internal/metrics"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/io/local"
)

// Artifact file names inside the output directory.
const (
	EnrichedCSVName = "enriched_articles.csv"
	ContactsCSVName = "contacts.csv"
	SummaryName     = "scraping_report.txt"
	XLSXName        = "enriched_articles.xlsx"
)

type Options struct {
	// BaseOnly writes articles without contact columns and skips the
	// contacts table, for runs with enrichment disabled.
	BaseOnly bool
	// XLSX also writes a workbook with both tables.
	XLSX bool
	// Now stamps the summary. Defaults to time.Now.
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Artifacts lists what MergeAndExport wrote. Empty paths were not written.
type Artifacts struct {
	EnrichedCSV string
	ContactsCSV string
	Summary     string
	XLSX        string
	Rows        int
	Contacts    int
}

// MergeAndExport joins articles to contacts and replaces every artifact in
// dir. Each file is written to a temp file and renamed, so a failure never
// leaves a truncated artifact behind.
func MergeAndExport(articles []article.Record, contacts []contact.Record, dir string, opts Options) (Artifacts, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("create output dir: %w", err)
	}

	var rows []Row
	if opts.BaseOnly {
		rows = BaseRows(articles)
	} else {
		rows = Merge(articles, contacts)
	}
	enriched := enrichedTable(rows)

	out := Artifacts{Rows: len(rows)}
	write := func(name string, fn func(io.Writer) error) (string, error) {
		p := filepath.Join(dir, name)
		if err := local.WriteFileAtomic(p, fn); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		logger.Info("wrote artifact", zap.String("path", p))
		return p, nil
	}

	var err error
	if out.EnrichedCSV, err = write(EnrichedCSVName, func(w io.Writer) error {
		return writeCSV(w, enriched)
	}); err != nil {
		return out, err
	}
	opts.Metrics.ExportedRows("enriched_articles", len(rows))

	var contactRows [][]string
	if !opts.BaseOnly {
		contactRows = contactsTable(contacts)
		if out.ContactsCSV, err = write(ContactsCSVName, func(w io.Writer) error {
			return writeCSV(w, contactRows)
		}); err != nil {
			return out, err
		}
		out.Contacts = len(contacts)
		opts.Metrics.ExportedRows("contacts", len(contacts))
	} else if err := removeStale(dir, ContactsCSVName, logger); err != nil {
		return out, err
	}

	stats := Summarize(articles, contacts)
	if out.Summary, err = write(SummaryName, func(w io.Writer) error {
		return WriteSummary(w, stats, opts.Now())
	}); err != nil {
		return out, err
	}

	if opts.XLSX {
		if out.XLSX, err = write(XLSXName, func(w io.Writer) error {
			return writeXLSX(w, enriched, contactRows)
		}); err != nil {
			return out, err
		}
	} else if err := removeStale(dir, XLSXName, logger); err != nil {
		return out, err
	}
	return out, nil
}

// removeStale deletes an artifact an earlier run left in dir, so the set of
// files present always matches what this run produced.
func removeStale(dir, name string, logger *zap.Logger) error {
	p := filepath.Join(dir, name)
	err := os.Remove(p)
	switch {
	case err == nil:
		logger.Info("removed stale artifact", zap.String("path", p))
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("remove stale %s: %w", name, err)
	}
}
