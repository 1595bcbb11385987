package export_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/shpitdev/byline-enricher/internal/article"
	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/internal/export"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/schema"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC) }

func sampleArticles() []article.Record {
	return []article.Record{
		{URL: "https://nyt.com/a", Title: "A", Author: "Jane Doe", SourceDomain: "nyt.com", PublishDate: "2024-01-01", Language: "en"},
		{URL: "https://nyt.com/b", Title: "B", Author: "Jane Doe", SourceDomain: "nyt.com"},
		{URL: "https://wsj.com/c", Title: "C", Author: "John Roe", SourceDomain: "wsj.com"},
		{URL: "https://ft.com/d", Title: "D", Author: "", SourceDomain: "ft.com"},
	}
}

func sampleContacts() []contact.Record {
	return []contact.Record{
		{
			FullName: "Jane Doe", Email: "jane@nyt.com", Confidence: 0.87, Source: "RocketReach",
			Domain: "nyt.com", Title: "Reporter", Company: "NYT", Status: contact.StatusFound,
			Validation: contact.Validation{Checked: true, SyntaxValid: true, MXValid: true, SMTPValid: contact.Unknown, Valid: true},
		},
		contact.NewNotFound("John Roe", "wsj.com", "RocketReach", contact.StatusNotFound),
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "87%", export.FormatPercent(0.87))
	assert.Equal(t, "29%", export.FormatPercent(0.29))
	assert.Equal(t, "100%", export.FormatPercent(1))
	assert.Equal(t, "0%", export.FormatPercent(0))
	assert.Equal(t, "0%", export.FormatPercent(-0.3))
	assert.Equal(t, "99%", export.FormatPercent(0.999))
}

func TestMerge_OneRowPerArticle(t *testing.T) {
	articles := sampleArticles()
	rows := export.Merge(articles, sampleContacts())
	require.Len(t, rows, len(articles))

	jane := rows[0].Contact
	require.NotNil(t, jane)
	assert.Equal(t, "Jane Doe", jane.FullName)
	assert.Equal(t, "jane@nyt.com", jane.Email)
	assert.Equal(t, "87%", jane.Confidence)
	assert.Equal(t, "Reporter", jane.ContactTitle)
	assert.True(t, jane.EmailSyntaxValid)
	assert.True(t, jane.EmailMXValid)
	assert.True(t, jane.LookupServiceReachable)
	assert.Equal(t, "found", jane.LookupStatus)
	assert.Equal(t, jane, rows[1].Contact)

	john := rows[2].Contact
	assert.Equal(t, "John Roe", john.FullName)
	assert.Equal(t, contact.NotFound, john.Email)
	assert.Equal(t, "0%", john.Confidence)
	assert.Equal(t, "not_found", john.LookupStatus)

	none := rows[3].Contact
	assert.Equal(t, contact.NotFound, none.FullName)
	assert.Equal(t, contact.NotFound, none.Email)
	assert.Equal(t, contact.NotFound, none.ContactTitle)
	assert.Equal(t, "0%", none.Confidence)
	assert.False(t, none.EmailSyntaxValid)
	assert.True(t, none.LookupServiceReachable, "reachability is run-level, not per row")
	assert.Equal(t, export.LookupStatusNone, none.LookupStatus)
}

func TestMerge_CaseSensitiveJoin(t *testing.T) {
	rows := export.Merge(
		[]article.Record{{URL: "u", Author: "jane doe", SourceDomain: "nyt.com"}},
		sampleContacts(),
	)
	assert.Equal(t, contact.NotFound, rows[0].Contact.Email)
}

func TestMerge_NoContactsMeansUnreachable(t *testing.T) {
	rows := export.Merge(sampleArticles(), nil)
	for _, r := range rows {
		assert.False(t, r.Contact.LookupServiceReachable)
		assert.Equal(t, contact.NotFound, r.Contact.Email)
	}
}

func TestMerge_FirstContactWins(t *testing.T) {
	dup := sampleContacts()[0]
	dup.Email = "other@nyt.com"
	rows := export.Merge(sampleArticles()[:1], append(sampleContacts(), dup))
	assert.Equal(t, "jane@nyt.com", rows[0].Contact.Email)
}

func TestWriteEnrichedCSV_Columns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteEnrichedCSV(&buf, export.BaseRows(sampleArticles())))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, schema.ArticleBase.Columns(), recs[0])
	assert.Len(t, recs, 5)

	buf.Reset()
	require.NoError(t, export.WriteEnrichedCSV(&buf, export.Merge(sampleArticles(), sampleContacts())))
	recs, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, schema.EnrichedColumns(true), recs[0])
	assert.Equal(t, []string{
		"https://nyt.com/a", "A", "Jane Doe", "nyt.com", "2024-01-01", "en",
		"Jane Doe", "jane@nyt.com", "87%", "Reporter", "true", "true", "true", "found",
	}, recs[1])
}

func TestSummarize(t *testing.T) {
	contacts := []contact.Record{
		{FullName: "A", Email: "a@x.com", Confidence: 0.9, Status: contact.StatusFound},
		{FullName: "B", Email: "b@x.com", Confidence: 0.8, Status: contact.StatusFound},
		{FullName: "C", Email: "c@x.com", Confidence: 0.5, Status: contact.StatusFound},
		{FullName: "D", Email: "d@x.com", Confidence: 0.2, Status: contact.StatusFound},
		contact.NewNotFound("E", "x.com", "t", contact.StatusNotFound),
	}
	s := export.Summarize(sampleArticles(), contacts)
	assert.Equal(t, 4, s.Articles)
	assert.Equal(t, 5, s.Contacts)
	assert.Equal(t, []export.SourceCount{
		{Domain: "nyt.com", Count: 2},
		{Domain: "ft.com", Count: 1},
		{Domain: "wsj.com", Count: 1},
	}, s.Sources)
	assert.Equal(t, 4, s.Scored)
	assert.InDelta(t, 0.6, s.AverageConfidence, 1e-9)
	assert.Equal(t, 1, s.High)
	assert.Equal(t, 2, s.Medium)
	assert.Equal(t, 1, s.Low)
}

func TestSummarize_MissingSourceDomain(t *testing.T) {
	in := "url,title,author\nhttps://a.com/1,One,Jane Doe\n"
	fromCSV, err := article.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	articles := append(fromCSV, article.Record{URL: "https://b.com/2", SourceDomain: "  "})

	s := export.Summarize(articles, nil)
	assert.Equal(t, []export.SourceCount{{Domain: export.UnknownSource, Count: 2}}, s.Sources)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	s := export.Summarize(sampleArticles(), sampleContacts())
	require.NoError(t, export.WriteSummary(&buf, s, fixedNow()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "News Scraping Report\n"+strings.Repeat("=", 50)+"\n"))
	assert.Contains(t, out, "Generated: 2024-03-05 10:30:00\n")
	assert.Contains(t, out, "Articles processed: 4\n")
	assert.Contains(t, out, "Contacts found: 2\n")
	assert.Contains(t, out, "Articles by source:\n")
	assert.Less(t, strings.Index(out, "nyt.com"), strings.Index(out, "wsj.com"))
	assert.Contains(t, out, "Average contact confidence: 0.87\n")
	assert.Contains(t, out, "High confidence contacts (>0.8): 1\n")
	assert.Contains(t, out, "Low confidence contacts (<0.5): 0\n")
}

func TestWriteSummary_NoScoredContacts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteSummary(&buf, export.Summarize(nil, nil), fixedNow()))
	assert.NotContains(t, buf.String(), "Articles by source")
	assert.NotContains(t, buf.String(), "Average contact confidence")
}

func TestMergeAndExport_WritesArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	arts, err := export.MergeAndExport(sampleArticles(), sampleContacts(), dir, export.Options{Now: fixedNow, XLSX: true})
	require.NoError(t, err)
	assert.Equal(t, 4, arts.Rows)
	assert.Equal(t, 2, arts.Contacts)

	enriched, err := os.ReadFile(arts.EnrichedCSV)
	require.NoError(t, err)
	recs, err := csv.NewReader(bytes.NewReader(enriched)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, recs, 1+4)

	contactsCSV, err := os.ReadFile(filepath.Join(dir, export.ContactsCSVName))
	require.NoError(t, err)
	recs, err = csv.NewReader(bytes.NewReader(contactsCSV)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, schema.Contacts.Columns(), recs[0])
	assert.Equal(t, []string{"Jane Doe", "jane@nyt.com", "nyt.com", "0.87", "RocketReach", "Reporter", "NYT", "true", "true", "", "true"}, recs[1])
	assert.Equal(t, []string{"John Roe", "not found", "wsj.com", "0", "RocketReach", "not found", "not found", "false", "false", "", "false"}, recs[2])

	_, err = os.Stat(filepath.Join(dir, export.SummaryName))
	require.NoError(t, err)

	f, err := excelize.OpenFile(arts.XLSX)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	sheet, err := f.GetRows("enriched_articles")
	require.NoError(t, err)
	require.Len(t, sheet, 5)
	assert.Equal(t, schema.EnrichedColumns(true), sheet[0])

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestMergeAndExport_Idempotent(t *testing.T) {
	dir := t.TempDir()
	opts := export.Options{Now: fixedNow}

	_, err := export.MergeAndExport(sampleArticles(), sampleContacts(), dir, opts)
	require.NoError(t, err)
	first := readAll(t, dir)

	_, err = export.MergeAndExport(sampleArticles(), sampleContacts(), dir, opts)
	require.NoError(t, err)
	assert.Equal(t, first, readAll(t, dir))
}

func TestMergeAndExport_BaseOnly(t *testing.T) {
	dir := t.TempDir()
	arts, err := export.MergeAndExport(sampleArticles(), nil, dir, export.Options{BaseOnly: true, Now: fixedNow})
	require.NoError(t, err)
	assert.Empty(t, arts.ContactsCSV)

	b, err := os.ReadFile(arts.EnrichedCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), strings.Join(schema.ArticleBase.Columns(), ",")+"\n"))
	_, err = os.Stat(filepath.Join(dir, export.ContactsCSVName))
	assert.True(t, os.IsNotExist(err))
}

func TestMergeAndExport_BaseOnlyRemovesEarlierContactTables(t *testing.T) {
	dir := t.TempDir()
	_, err := export.MergeAndExport(sampleArticles(), sampleContacts(), dir, export.Options{XLSX: true, Now: fixedNow})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, export.ContactsCSVName))
	require.FileExists(t, filepath.Join(dir, export.XLSXName))

	arts, err := export.MergeAndExport(sampleArticles(), nil, dir, export.Options{BaseOnly: true, Now: fixedNow})
	require.NoError(t, err)
	assert.Empty(t, arts.ContactsCSV)
	assert.NoFileExists(t, filepath.Join(dir, export.ContactsCSVName))
	assert.NoFileExists(t, filepath.Join(dir, export.XLSXName))
	assert.FileExists(t, arts.EnrichedCSV)
}

func TestMergeAndExport_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := export.MergeAndExport(sampleArticles(), nil, filepath.Join(file, "out"), export.Options{})
	assert.Error(t, err)
}

func readAll(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(b)
	}
	return out
}
