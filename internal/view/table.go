package view

import (
	"github.com/alanyoungcy/tradedesk/internal/columns"
	"github.com/alanyoungcy/tradedesk/internal/paginate"
)

// Header names one rendered column.
type Header struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Row is one rendered record. Cells line up with Table.Headers.
type Row struct {
	ID    string   `json:"id"`
	Cells []string `json:"cells"`
}

// Table is a page of records projected onto the visible columns.
type Table struct {
	Name       string            `json:"name"`
	Headers    []Header          `json:"headers"`
	Rows       []Row             `json:"rows"`
	Window     paginate.Window   `json:"window"`
	Query      string            `json:"query"`
	Selections map[string]string `json:"selections,omitempty"`
	Columns    map[string]bool   `json:"columns"`
}

// Identified is implemented by every record that can be rendered.
type Identified interface {
	RecordID() string
}

// Build projects page onto the columns of s that vis marks visible. A nil
// vis shows every column.
func Build[T Identified](s Schema[T], page []T, vis *columns.Visibility) Table {
	cols := make([]Column[T], 0, len(s.Columns))
	for _, c := range s.Columns {
		if vis == nil || vis.IsVisible(c.Key) {
			cols = append(cols, c)
		}
	}

	t := Table{
		Name:    s.Name,
		Headers: make([]Header, len(cols)),
		Rows:    make([]Row, 0, len(page)),
	}
	for i, c := range cols {
		t.Headers[i] = Header{Key: c.Key, Title: c.Title}
	}
	for _, rec := range page {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = c.Value(rec)
		}
		t.Rows = append(t.Rows, Row{ID: rec.RecordID(), Cells: cells})
	}
	if vis != nil {
		t.Columns = vis.Snapshot()
	}
	return t
}
