package schema

import "slices"

// Field captures the minimal behavior-relevant schema fields.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// TableContract is the fixed, ordered column contract of an output table.
type TableContract struct {
	Name   string
	Fields []Field
}

// Columns returns the column names in contract order.
func (c TableContract) Columns() []string {
	out := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Has reports whether the contract contains a column.
func (c TableContract) Has(name string) bool {
	return slices.ContainsFunc(c.Fields, func(f Field) bool { return f.Name == name })
}

// ArticleBase is always emitted first in the enriched articles table.
var ArticleBase = TableContract{
	Name: "article_base",
	Fields: []Field{
		{Name: "url", Type: "string"},
		{Name: "title", Type: "string", Nullable: true},
		{Name: "author", Type: "string", Nullable: true},
		{Name: "source_domain", Type: "string", Nullable: true},
		{Name: "date_publish", Type: "string", Nullable: true},
		{Name: "language", Type: "string", Nullable: true},
	},
}

// ArticleContact is appended to the enriched articles table when any row
// carries contact data.
var ArticleContact = TableContract{
	Name: "article_contact",
	Fields: []Field{
		{Name: "full_name", Type: "string"},
		{Name: "email", Type: "string"},
		{Name: "confidence", Type: "string"},
		{Name: "contact_title", Type: "string"},
		{Name: "email_syntax_valid", Type: "boolean"},
		{Name: "email_mx_valid", Type: "boolean"},
		{Name: "lookup_service_reachable", Type: "boolean"},
		{Name: "lookup_status", Type: "string"},
	},
}

// Contacts is the contacts-only table.
var Contacts = TableContract{
	Name: "contacts",
	Fields: []Field{
		{Name: "full_name", Type: "string"},
		{Name: "email", Type: "string"},
		{Name: "domain", Type: "string"},
		{Name: "confidence", Type: "double"},
		{Name: "source", Type: "string"},
		{Name: "title", Type: "string"},
		{Name: "company", Type: "string"},
		{Name: "syntax_valid", Type: "boolean"},
		{Name: "mx_valid", Type: "boolean"},
		{Name: "smtp_valid", Type: "boolean", Nullable: true},
		{Name: "valid", Type: "boolean"},
	},
}

// EnrichedColumns returns the enriched-articles header, appending the contact
// columns only when withContact is set.
func EnrichedColumns(withContact bool) []string {
	cols := ArticleBase.Columns()
	if withContact {
		cols = append(cols, ArticleContact.Columns()...)
	}
	return cols
}
