package domain

import "time"

// Pub/sub channels carrying desk events.
const (
	ChannelPositions = "desk:positions"
	ChannelOrders    = "desk:orders"
	ChannelActivity  = "desk:activity"
)

// DeskChannels lists every desk event channel.
var DeskChannels = []string{ChannelPositions, ChannelOrders, ChannelActivity}

// EventStream is the durable stream every desk event is appended to.
const EventStream = "desk:events"

// Desk event types.
const (
	EventPositionEdited = "position_edited"
	EventPositionClosed = "position_closed"
	EventRecordDeleted  = "record_deleted"
	EventExportCreated  = "export_created"
	// EventDeskError is only raised as an operator alert, never published.
	EventDeskError = "error"
)

// DeskEvent is published whenever a session changes a record.
type DeskEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Table     string    `json:"table"`
	RecordID  string    `json:"recordId"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}
