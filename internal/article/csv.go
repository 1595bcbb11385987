package article

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadCSV reads previously extracted articles. A "url" column is required;
// the other article columns are optional and matched case-insensitively.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["url"]; !ok {
		return nil, fmt.Errorf("missing required column %q", "url")
	}

	var out []Record
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		get := func(cols ...string) string {
			for _, col := range cols {
				i, ok := index[col]
				if !ok || i >= len(rec) {
					continue
				}
				if v := strings.TrimSpace(rec[i]); v != "" {
					return v
				}
			}
			return ""
		}

		u := get("url")
		if u == "" {
			continue
		}
		out = append(out, Record{
			URL:          u,
			Title:        get("title"),
			Author:       get("author", "authors"),
			SourceDomain: get("source_domain", "domain"),
			PublishDate:  get("date_publish", "publish_date"),
			Language:     get("language"),
			Description:  get("description"),
		})
	}
}
