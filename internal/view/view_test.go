package view

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/alanyoungcy/tradedesk/internal/columns"
	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/paginate"
)

func page() []domain.Position {
	return []domain.Position{
		{ID: "AT-001", PositionID: "P-1", Symbol: "EURUSD", AccountName: "Alpha, Ltd", UnrealizedPnL: 12.5, EntryPrice: 1.1, Leverage: 100},
		{ID: "AT-002", PositionID: "P-2", Symbol: "GBPUSD", AccountName: "Beta", UnrealizedPnL: -3},
	}
}

func TestBuildProjectsVisibleColumns(t *testing.T) {
	vis := columns.New(PositionSchema.Keys()...)
	vis.SetAll(false)
	_ = vis.Set("symbol", true)
	_ = vis.Set("unrealizedPnL", true)

	tbl := Build(PositionSchema, page(), vis)
	if len(tbl.Headers) != 2 || tbl.Headers[0].Key != "symbol" || tbl.Headers[1].Key != "unrealizedPnL" {
		t.Fatalf("headers = %+v", tbl.Headers)
	}
	if len(tbl.Rows) != 2 || tbl.Rows[1].ID != "AT-002" {
		t.Fatalf("rows = %+v", tbl.Rows)
	}
	if got := tbl.Rows[0].Cells; got[0] != "EURUSD" || got[1] != "12.50" {
		t.Fatalf("cells = %v", got)
	}
	if len(tbl.Columns) != len(PositionSchema.Columns) {
		t.Fatalf("column snapshot has %d keys", len(tbl.Columns))
	}
}

func TestBuildNoVisibleColumns(t *testing.T) {
	vis := columns.New(PositionSchema.Keys()...)
	vis.SetAll(false)
	tbl := Build(PositionSchema, page(), vis)
	if len(tbl.Headers) != 0 || len(tbl.Rows) != 2 || len(tbl.Rows[0].Cells) != 0 {
		t.Fatalf("table = %+v", tbl)
	}
}

func TestBuildEmptyPage(t *testing.T) {
	tbl := Build(ClosedSchema, nil, nil)
	if tbl.Rows == nil || len(tbl.Headers) != len(ClosedSchema.Columns) {
		t.Fatalf("table = %+v", tbl)
	}
}

func TestColumnKeys(t *testing.T) {
	for _, name := range Tables {
		keys, err := ColumnKeys(name)
		if err != nil || len(keys) == 0 {
			t.Errorf("ColumnKeys(%s) = %v, %v", name, keys, err)
		}
	}
	if _, err := ColumnKeys("orders"); !errors.Is(err, domain.ErrUnknownTable) {
		t.Errorf("ColumnKeys(orders) err = %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	vis := columns.New(PositionSchema.Keys()...)
	vis.SetAll(false)
	_ = vis.Set("accountName", true)
	_ = vis.Set("leverage", true)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, Build(PositionSchema, page(), vis)); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(recs) != 3 || recs[0][0] != "Account" || recs[1][0] != "Alpha, Ltd" || recs[1][1] != "1:100" {
		t.Fatalf("csv = %v", recs)
	}
}

func TestRender(t *testing.T) {
	tbl := Build(PositionSchema, page(), nil)
	tbl.Window = paginate.Paginate(12, 5, 1)
	var buf bytes.Buffer
	if err := Render(&buf, tbl); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"POSITIONS", "EURUSD", "GBPUSD", "page 1/3"} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q", want)
		}
	}
}
