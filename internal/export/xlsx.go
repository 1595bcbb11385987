package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	sheetEnriched = "enriched_articles"
	sheetContacts = "contacts"
)

// writeXLSX writes the enriched and contacts tables as two sheets.
func writeXLSX(w io.Writer, enriched, contacts [][]string) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetEnriched); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetContacts); err != nil {
		return err
	}
	if err := fillSheet(f, sheetEnriched, enriched); err != nil {
		return err
	}
	if err := fillSheet(f, sheetContacts, contacts); err != nil {
		return err
	}
	return f.Write(w)
}

func fillSheet(f *excelize.File, sheet string, rows [][]string) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) > 0 {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return err
		}
	}
	return nil
}
