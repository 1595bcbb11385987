package contact

import "strings"

// Key identifies one lookup within a run: an author appearing on several
// articles of the same domain is looked up once.
type Key struct {
	Name   string
	Domain string
}

// NewKey trims the name and normalizes the domain.
func NewKey(name, domain string) Key {
	return Key{Name: strings.TrimSpace(name), Domain: NormalizeDomain(domain)}
}

// Empty reports whether the key cannot be queried.
func (k Key) Empty() bool {
	return k.Name == "" || k.Domain == ""
}

// NormalizeDomain strips the scheme and a leading "www." from a domain.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimRight(d, "/")
}

// UniqueKeys returns the distinct non-empty keys in first-seen order.
func UniqueKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if k.Empty() {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
