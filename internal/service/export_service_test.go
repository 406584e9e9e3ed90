package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

type fakeBlob struct {
	path        string
	body        string
	contentType string
	err         error
}

func (f *fakeBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, _ := io.ReadAll(data)
	f.path, f.body, f.contentType = path, string(b), contentType
	return f.err
}

func (f *fakeBlob) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(context.Background(), path, data, "")
}

type fakeTables struct {
	table view.Table
	err   error
}

func (f fakeTables) Export(string) (view.Table, error) { return f.table, f.err }

func TestExportUploadsCSV(t *testing.T) {
	blob := &fakeBlob{}
	bus := &fakeBus{}
	svc := NewExportService(blob, bus, "", discardLogger())
	svc.now = func() time.Time { return fixedNow }

	src := fakeTables{table: view.Table{
		Name:    view.TablePositions,
		Headers: []view.Header{{Key: "symbol", Title: "Symbol"}, {Key: "pnl", Title: "Unrealized PnL"}},
		Rows:    []view.Row{{ID: "AT-002", Cells: []string{"GBPUSD", "200.00"}}},
	}}

	res, err := svc.Export(context.Background(), src, view.TablePositions)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(res.Key, "exports/positions/2024-01-10/") || !strings.HasSuffix(res.Key, ".csv") {
		t.Errorf("key = %s", res.Key)
	}
	if blob.path != res.Key || blob.contentType != "text/csv" {
		t.Errorf("uploaded to %s as %s", blob.path, blob.contentType)
	}
	if blob.body != "Symbol,Unrealized PnL\nGBPUSD,200.00\n" {
		t.Errorf("body = %q", blob.body)
	}
	if res.Rows != 1 || res.Bytes != len(blob.body) {
		t.Errorf("result = %+v", res)
	}
	if got := bus.types(domain.ChannelActivity); len(got) != 1 || got[0] != domain.EventExportCreated {
		t.Errorf("events = %v", got)
	}
}

func TestExportErrors(t *testing.T) {
	svc := NewExportService(&fakeBlob{}, nil, "x", discardLogger())
	if _, err := svc.Export(context.Background(), fakeTables{err: domain.ErrUnknownTable}, "nope"); !errors.Is(err, domain.ErrUnknownTable) {
		t.Errorf("unknown table err = %v", err)
	}

	boom := errors.New("s3 down")
	svc = NewExportService(&fakeBlob{err: boom}, nil, "x", discardLogger())
	if _, err := svc.Export(context.Background(), fakeTables{}, view.TableClosed); !errors.Is(err, boom) {
		t.Errorf("upload err = %v", err)
	}
}
