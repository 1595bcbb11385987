package export

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shpitdev/byline-enricher/internal/article"
	"github.com/shpitdev/byline-enricher/internal/contact"
)

// SourceCount is the number of articles from one domain.
type SourceCount struct {
	Domain string
	Count  int
}

// Stats is the aggregate written to the run summary.
type Stats struct {
	Articles          int
	Contacts          int
	Sources           []SourceCount
	Scored            int
	AverageConfidence float64
	High              int
	Medium            int
	Low               int
}

// UnknownSource labels articles without a source domain in the report.
// Records carry no presence flag, so a missing source_domain column and an
// empty value land in the same bucket.
const UnknownSource = "Unknown"

// Summarize aggregates articles and contacts. Confidence buckets only count
// contacts with a positive confidence: high > 0.8, medium 0.5..0.8, low < 0.5.
func Summarize(articles []article.Record, contacts []contact.Record) Stats {
	s := Stats{Articles: len(articles), Contacts: len(contacts)}

	counts := make(map[string]int)
	for _, a := range articles {
		d := strings.TrimSpace(a.SourceDomain)
		if d == "" {
			d = UnknownSource
		}
		counts[d]++
	}
	for d, n := range counts {
		s.Sources = append(s.Sources, SourceCount{Domain: d, Count: n})
	}
	slices.SortFunc(s.Sources, func(a, b SourceCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Domain, b.Domain)
	})

	var total float64
	for _, c := range contacts {
		conf := c.DisplayConfidence()
		if conf <= 0 {
			continue
		}
		s.Scored++
		total += conf
		switch {
		case conf > 0.8:
			s.High++
		case conf >= 0.5:
			s.Medium++
		default:
			s.Low++
		}
	}
	if s.Scored > 0 {
		s.AverageConfidence = total / float64(s.Scored)
	}
	return s
}

// WriteSummary renders the plain-text run report.
func WriteSummary(w io.Writer, s Stats, generated time.Time) error {
	var b strings.Builder
	b.WriteString("News Scraping Report\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format(time.DateTime))
	fmt.Fprintf(&b, "Articles processed: %d\n", s.Articles)
	fmt.Fprintf(&b, "Contacts found: %d\n\n", s.Contacts)

	if len(s.Sources) > 0 {
		b.WriteString("Articles by source:\n")
		b.WriteString(sourcesTable(s.Sources))
		b.WriteString("\n\n")
	}

	if s.Scored > 0 {
		fmt.Fprintf(&b, "Average contact confidence: %.2f\n", s.AverageConfidence)
		fmt.Fprintf(&b, "High confidence contacts (>0.8): %d\n", s.High)
		fmt.Fprintf(&b, "Medium confidence contacts (0.5-0.8): %d\n", s.Medium)
		fmt.Fprintf(&b, "Low confidence contacts (<0.5): %d\n", s.Low)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func sourcesTable(sources []SourceCount) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Articles"})
	for _, s := range sources {
		t.AppendRow(table.Row{s.Domain, s.Count})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return t.Render()
}
