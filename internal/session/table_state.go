package session

import (
	"github.com/alanyoungcy/tradedesk/internal/columns"
	"github.com/alanyoungcy/tradedesk/internal/filter"
	"github.com/alanyoungcy/tradedesk/internal/paginate"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// TableState is the per-table view state of a session: the filter inputs,
// the pagination state and the visible columns.
type TableState struct {
	Query      string
	Selections filter.Selections
	Pages      *paginate.State
	Columns    *columns.Visibility
}

func newTableState(name string, pageSize int) (*TableState, error) {
	keys, err := view.ColumnKeys(name)
	if err != nil {
		return nil, err
	}
	return &TableState{
		Selections: filter.Selections{},
		Pages:      paginate.NewState(pageSize),
		Columns:    columns.New(keys...),
	}, nil
}

// project filters recs, clamps the page and builds the visible table. With
// all set every matching record is included instead of one page.
func project[T interface {
	filter.Record
	view.Identified
}](schema view.Schema[T], recs []T, ts *TableState, all bool) view.Table {
	matched := filter.Apply(recs, ts.Query, ts.Selections)
	win := ts.Pages.Window(len(matched))
	rows := matched
	if !all {
		rows = paginate.Slice(matched, win)
	}
	t := view.Build(schema, rows, ts.Columns)
	t.Window = win
	t.Query = ts.Query
	t.Selections = ts.Selections.Active()
	return t
}

func countMatches[T filter.Record](recs []T, ts *TableState) int {
	return len(filter.Apply(recs, ts.Query, ts.Selections))
}
