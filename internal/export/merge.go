// Package export joins articles to contacts and writes the run artifacts.
package export

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shpitdev/byline-enricher/internal/article"
	"github.com/shpitdev/byline-enricher/internal/contact"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/schema"
)

// LookupStatusNone marks a row whose author had no contact record at all.
const LookupStatusNone = "none"

// ContactFields are the columns appended to an article once enrichment ran.
type ContactFields struct {
	FullName               string
	Email                  string
	Confidence             string
	ContactTitle           string
	EmailSyntaxValid       bool
	EmailMXValid           bool
	LookupServiceReachable bool
	LookupStatus           string
}

// Row is one enriched-articles line. Contact is nil when enrichment was off.
type Row struct {
	Article article.Record
	Contact *ContactFields
}

// BaseRows wraps articles without contact columns.
func BaseRows(articles []article.Record) []Row {
	rows := make([]Row, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, Row{Article: a})
	}
	return rows
}

// Merge produces exactly one row per article. The join is exact on
// (author, domain) after whitespace and "www." trimming; case matters.
// The first contact for a key wins.
func Merge(articles []article.Record, contacts []contact.Record) []Row {
	byKey := make(map[contact.Key]contact.Record, len(contacts))
	for _, c := range contacts {
		k := contact.NewKey(c.FullName, c.Domain)
		if _, dup := byKey[k]; !dup {
			byKey[k] = c
		}
	}
	// Coarse run-level flag: any contact at all means the service was reached.
	reachable := len(contacts) > 0

	rows := make([]Row, 0, len(articles))
	for _, a := range articles {
		c, ok := byKey[a.ContactKey()]
		if !ok {
			rows = append(rows, Row{Article: a, Contact: &ContactFields{
				FullName:               contact.NotFound,
				Email:                  contact.NotFound,
				Confidence:             FormatPercent(0),
				ContactTitle:           contact.NotFound,
				LookupServiceReachable: reachable,
				LookupStatus:           LookupStatusNone,
			}})
			continue
		}
		rows = append(rows, Row{Article: a, Contact: &ContactFields{
			FullName:               c.FullName,
			Email:                  c.DisplayEmail(),
			Confidence:             FormatPercent(c.DisplayConfidence()),
			ContactTitle:           c.DisplayTitle(),
			EmailSyntaxValid:       c.Validation.SyntaxValid,
			EmailMXValid:           c.Validation.MXValid,
			LookupServiceReachable: reachable,
			LookupStatus:           c.Status.String(),
		}})
	}
	return rows
}

// FormatPercent renders a [0,1] confidence as a floored integer percentage.
func FormatPercent(conf float64) string {
	if math.IsNaN(conf) || conf <= 0 {
		return "0%"
	}
	// The epsilon keeps 0.29*100 = 28.999... from flooring to 28.
	return fmt.Sprintf("%d%%", int(math.Floor(conf*100+1e-9)))
}

func hasContactColumns(rows []Row) bool {
	for _, r := range rows {
		if r.Contact != nil {
			return true
		}
	}
	return false
}

// values renders r in schema.EnrichedColumns order.
func (r Row) values(withContact bool) []string {
	a := r.Article
	out := []string{a.URL, a.Title, a.Author, a.SourceDomain, a.PublishDate, a.Language}
	if !withContact {
		return out
	}
	c := r.Contact
	if c == nil {
		c = &ContactFields{
			FullName:     contact.NotFound,
			Email:        contact.NotFound,
			Confidence:   FormatPercent(0),
			ContactTitle: contact.NotFound,
			LookupStatus: LookupStatusNone,
		}
	}
	return append(out,
		c.FullName,
		c.Email,
		c.Confidence,
		c.ContactTitle,
		strconv.FormatBool(c.EmailSyntaxValid),
		strconv.FormatBool(c.EmailMXValid),
		strconv.FormatBool(c.LookupServiceReachable),
		c.LookupStatus,
	)
}

// enrichedTable returns the header and body of the enriched-articles table.
func enrichedTable(rows []Row) [][]string {
	withContact := hasContactColumns(rows)
	out := make([][]string, 0, len(rows)+1)
	out = append(out, schema.EnrichedColumns(withContact))
	for _, r := range rows {
		out = append(out, r.values(withContact))
	}
	return out
}

// contactsTable returns the header and body of the contacts-only table.
func contactsTable(contacts []contact.Record) [][]string {
	out := make([][]string, 0, len(contacts)+1)
	out = append(out, schema.Contacts.Columns())
	for _, c := range contacts {
		out = append(out, []string{
			c.FullName,
			c.DisplayEmail(),
			c.Domain,
			strconv.FormatFloat(c.DisplayConfidence(), 'f', -1, 64),
			c.Source,
			c.DisplayTitle(),
			c.DisplayCompany(),
			strconv.FormatBool(c.Validation.SyntaxValid),
			strconv.FormatBool(c.Validation.MXValid),
			c.Validation.SMTPValid.String(),
			strconv.FormatBool(c.Validation.Valid),
		})
	}
	return out
}
