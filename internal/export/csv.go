package export

import (
	"encoding/csv"
	"io"
)

// writeCSV writes a header-first table.
func writeCSV(w io.Writer, table [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(table); err != nil {
		return err
	}
	return cw.Error()
}

// WriteEnrichedCSV writes rows with the stable enriched-articles header.
func WriteEnrichedCSV(w io.Writer, rows []Row) error {
	return writeCSV(w, enrichedTable(rows))
}
