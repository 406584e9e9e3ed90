package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Event restricts audit listings to one event name.
	Event string
}

// RecordSource supplies the three source collections when a view mounts.
// Implementations are read-only from the desk's point of view.
type RecordSource interface {
	LoadActive(ctx context.Context) ([]Position, error)
	LoadPending(ctx context.Context) ([]PendingOrder, error)
	LoadClosed(ctx context.Context) ([]ClosedPosition, error)
}

// EditCommitter receives a position after an operator saved an edit.
type EditCommitter interface {
	CommitEdit(ctx context.Context, updated Position) error
}

// CloseSettler receives confirmed close intents and answers with an
// acknowledgement once the system of record has accepted or refused them.
type CloseSettler interface {
	Settle(ctx context.Context, intent CloseIntent) (CloseAck, error)
}

// RecordDeleter receives delete requests for a record of the named table.
type RecordDeleter interface {
	DeleteRecord(ctx context.Context, table, id string) error
}

// PositionStore is the persistent system of record for positions.
type PositionStore interface {
	Update(ctx context.Context, pos Position) error
	ApplyClose(ctx context.Context, intent CloseIntent, closed ClosedPosition) error
}

// PendingOrderStore is the persistent system of record for pending orders.
type PendingOrderStore interface {
	Delete(ctx context.Context, id string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
