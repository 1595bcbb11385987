// Package contact holds the contact records produced by author lookups.
package contact

import (
	"strings"
)

// NotFound is the sentinel rendered in place of a missing email, title or
// company in exported tables.
const NotFound = "not found"

// Status is the outcome of one lookup.
type Status int

const (
	// StatusSkipped means no lookup was issued (empty name or domain).
	StatusSkipped Status = iota
	// StatusFound means the service matched a person with an email address.
	StatusFound
	// StatusNotFound means the service answered but had no person or no email.
	StatusNotFound
	// StatusUnreachable means every attempt failed or a rate limit was abandoned.
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "skipped"
	}
}

// Tri is a true/false/unknown verdict.
type Tri int

const (
	Unknown Tri = iota
	True
	False
)

// TriOf converts a definite boolean.
func TriOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

// String renders "" for unknown so CSV cells stay empty.
func (t Tri) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return ""
	}
}

// Validation carries the email validator verdict merged into a Record.
type Validation struct {
	Checked     bool
	SyntaxValid bool
	MXValid     bool
	SMTPValid   Tri
	Valid       bool
	Reason      string
}

// Record is one contact per unique lookup key per run. It is not mutated
// after the orchestrator attaches validation.
type Record struct {
	FullName   string
	Email      string
	Confidence float64
	Source     string
	Domain     string
	Title      string
	Company    string
	Status     Status
	Validation Validation
}

// Key returns the join/dedup identity of the record.
func (r Record) Key() Key {
	return Key{Name: r.FullName, Domain: r.Domain}
}

// HasEmail reports whether the record carries a real address.
func (r Record) HasEmail() bool {
	e := strings.TrimSpace(r.Email)
	return r.Status == StatusFound && e != "" && e != NotFound
}

// Reachable reports whether the lookup service answered for this record.
func (r Record) Reachable() bool {
	return r.Status == StatusFound || r.Status == StatusNotFound
}

func (r Record) DisplayEmail() string   { return orNotFound(r.HasEmail(), r.Email) }
func (r Record) DisplayTitle() string   { return orNotFound(r.Status == StatusFound, r.Title) }
func (r Record) DisplayCompany() string { return orNotFound(r.Status == StatusFound, r.Company) }

// DisplayConfidence is 0 unless the record carries a real address.
func (r Record) DisplayConfidence() float64 {
	if !r.HasEmail() {
		return 0
	}
	return r.Confidence
}

func orNotFound(ok bool, v string) string {
	if !ok {
		return NotFound
	}
	return v
}

// NewNotFound builds the record returned when the service had no usable match
// or could not be reached.
func NewNotFound(fullName, domain, source string, status Status) Record {
	return Record{
		FullName: fullName,
		Domain:   domain,
		Source:   source,
		Status:   status,
	}
}
