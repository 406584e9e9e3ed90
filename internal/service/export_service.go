package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/metrics"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// multipartThreshold is the export size above which uploads go through the
// multipart manager.
const multipartThreshold = 16 << 20

// TableSource yields the filtered rows of a table, e.g. a session.
type TableSource interface {
	Export(table string) (view.Table, error)
}

// ExportResult describes one uploaded export.
type ExportResult struct {
	Table string    `json:"table"`
	Key   string    `json:"key"`
	Rows  int       `json:"rows"`
	Bytes int       `json:"bytes"`
	At    time.Time `json:"at"`
}

// ExportService uploads CSV renderings of a table's current filtered view
// to object storage.
type ExportService struct {
	blob   domain.BlobWriter
	bus    domain.SignalBus
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewExportService creates an ExportService. bus may be nil.
func NewExportService(blob domain.BlobWriter, bus domain.SignalBus, prefix string, logger *slog.Logger) *ExportService {
	if prefix == "" {
		prefix = "exports"
	}
	return &ExportService{
		blob:   blob,
		bus:    bus,
		prefix: prefix,
		now:    time.Now,
		logger: logger.With(slog.String("component", "export_service")),
	}
}

// Export renders table from src as CSV and uploads it under
// <prefix>/<table>/<yyyy-mm-dd>/<uuid>.csv.
func (s *ExportService) Export(ctx context.Context, src TableSource, table string) (ExportResult, error) {
	t, err := src.Export(table)
	if err != nil {
		return ExportResult{}, fmt.Errorf("export_service: %s: %w", table, err)
	}

	var buf bytes.Buffer
	if err := view.WriteCSV(&buf, t); err != nil {
		return ExportResult{}, fmt.Errorf("export_service: %s: encode: %w", table, err)
	}

	now := s.now().UTC()
	key := path.Join(s.prefix, table, now.Format("2006-01-02"), uuid.NewString()+".csv")
	size := buf.Len()

	if size > multipartThreshold {
		err = s.blob.PutMultipart(ctx, key, &buf, 0)
	} else {
		err = s.blob.Put(ctx, key, &buf, "text/csv")
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("export_service: %s: upload: %w", table, err)
	}
	metrics.RecordExport(table)

	res := ExportResult{Table: table, Key: key, Rows: len(t.Rows), Bytes: size, At: now}
	if s.bus != nil {
		evt, _ := json.Marshal(domain.DeskEvent{
			ID:      uuid.NewString(),
			Type:    domain.EventExportCreated,
			Channel: domain.ChannelActivity,
			Table:   table,
			At:      now,
			Data:    res,
		})
		if pubErr := s.bus.Publish(ctx, domain.ChannelActivity, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "export_service: publish event failed", slog.String("error", pubErr.Error()))
		}
	}

	s.logger.InfoContext(ctx, "export_service: export uploaded",
		slog.String("table", table),
		slog.String("key", key),
		slog.Int("rows", res.Rows),
	)
	return res, nil
}
