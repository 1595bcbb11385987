// Package article holds the article records produced by the extractor and the
// extractor boundary itself.
package article

import (
	"net/url"
	"strings"

	"github.com/shpitdev/byline-enricher/internal/contact"
)

// Record is one extracted article. URL is unique within a run.
type Record struct {
	URL          string
	Title        string
	Author       string
	SourceDomain string
	PublishDate  string
	Language     string
	Description  string
}

// ContactKey is the lookup identity of the article's byline.
func (r Record) ContactKey() contact.Key {
	return contact.NewKey(r.Author, r.SourceDomain)
}

// JoinAuthors folds a multi-author byline into one display string.
func JoinAuthors(authors []string) string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return strings.Join(out, ", ")
}

// NormalizeURL prefixes a scheme-less URL with https://.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// DomainFromURL returns the host of raw without a leading "www.", or "" when
// raw has no host.
func DomainFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
