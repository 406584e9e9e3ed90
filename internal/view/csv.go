package view

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes t as CSV with a header row of column titles.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = h.Title
	}
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("view: write csv header: %w", err)
	}
	for _, r := range t.Rows {
		if err := cw.Write(r.Cells); err != nil {
			return fmt.Errorf("view: write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("view: flush csv: %w", err)
	}
	return nil
}
