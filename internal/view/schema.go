// Package view projects records onto table rows for the dashboard, the
// terminal and CSV exports.
package view

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Table names.
const (
	TablePositions = "positions"
	TablePending   = "pending"
	TableClosed    = "closed"
	TableActivity  = "activity"
)

// Tables lists every table name in display order.
var Tables = []string{TablePositions, TablePending, TableClosed, TableActivity}

// Column describes one column of a table over records of type T.
type Column[T any] struct {
	Key   string
	Title string
	Value func(T) string
}

// Schema is the fixed, ordered column set of a table.
type Schema[T any] struct {
	Name    string
	Columns []Column[T]
}

// Keys returns the column keys in order.
func (s Schema[T]) Keys() []string {
	keys := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		keys[i] = c.Key
	}
	return keys
}

// ColumnKeys returns the column keys of the named table.
func ColumnKeys(table string) ([]string, error) {
	switch table {
	case TablePositions:
		return PositionSchema.Keys(), nil
	case TablePending:
		return PendingSchema.Keys(), nil
	case TableClosed:
		return ClosedSchema.Keys(), nil
	case TableActivity:
		return ActivitySchema.Keys(), nil
	}
	return nil, fmt.Errorf("view: table %q: %w", table, domain.ErrUnknownTable)
}

func price(v float64) string { return decimal.NewFromFloat(v).StringFixed(5) }
func money(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) }
func qty(v float64) string   { return decimal.NewFromFloat(v).String() }
func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// PositionSchema is the Active Positions table.
var PositionSchema = Schema[domain.Position]{
	Name: TablePositions,
	Columns: []Column[domain.Position]{
		{"positionId", "Position", func(p domain.Position) string { return p.PositionID }},
		{"accountId", "Account ID", func(p domain.Position) string { return p.AccountID }},
		{"accountName", "Account", func(p domain.Position) string { return p.AccountName }},
		{"symbol", "Symbol", func(p domain.Position) string { return p.Symbol }},
		{"direction", "Side", func(p domain.Position) string { return string(p.Direction) }},
		{"quantity", "Qty", func(p domain.Position) string { return qty(p.Quantity) }},
		{"entryPrice", "Entry", func(p domain.Position) string { return price(p.EntryPrice) }},
		{"currentPrice", "Current", func(p domain.Position) string { return price(p.CurrentPrice) }},
		{"takeProfit", "TP", func(p domain.Position) string { return price(p.TakeProfit) }},
		{"stopLoss", "SL", func(p domain.Position) string { return price(p.StopLoss) }},
		{"marginUsed", "Margin", func(p domain.Position) string { return money(p.MarginUsed) }},
		{"unrealizedPnL", "Unrealized P&L", func(p domain.Position) string { return money(p.UnrealizedPnL) }},
		{"leverage", "Leverage", func(p domain.Position) string { return "1:" + strconv.Itoa(p.Leverage) }},
		{"strategy", "Strategy", func(p domain.Position) string { return p.Strategy }},
		{"riskLevel", "Risk", func(p domain.Position) string { return string(p.RiskLevel) }},
		{"tags", "Tags", func(p domain.Position) string { return strings.Join(p.Tags, ", ") }},
		{"openTime", "Opened", func(p domain.Position) string { return stamp(p.OpenTime) }},
		{"deviceInfo", "Device", func(p domain.Position) string { return p.DeviceInfo }},
	},
}

// PendingSchema is the Pending Orders table.
var PendingSchema = Schema[domain.PendingOrder]{
	Name: TablePending,
	Columns: []Column[domain.PendingOrder]{
		{"id", "Order", func(o domain.PendingOrder) string { return o.ID }},
		{"accountId", "Account ID", func(o domain.PendingOrder) string { return o.AccountID }},
		{"accountName", "Account", func(o domain.PendingOrder) string { return o.AccountName }},
		{"symbol", "Symbol", func(o domain.PendingOrder) string { return o.Symbol }},
		{"type", "Side", func(o domain.PendingOrder) string { return string(o.Type) }},
		{"orderType", "Type", func(o domain.PendingOrder) string { return string(o.OrderType) }},
		{"volume", "Volume", func(o domain.PendingOrder) string { return qty(o.Volume) }},
		{"price", "Price", func(o domain.PendingOrder) string { return price(o.Price) }},
		{"marginRequired", "Margin Req.", func(o domain.PendingOrder) string { return money(o.MarginRequired) }},
		{"strategy", "Strategy", func(o domain.PendingOrder) string { return o.Strategy }},
		{"riskLevel", "Risk", func(o domain.PendingOrder) string { return string(o.RiskLevel) }},
		{"tags", "Tags", func(o domain.PendingOrder) string { return strings.Join(o.Tags, ", ") }},
		{"time", "Placed", func(o domain.PendingOrder) string { return stamp(o.Time) }},
		{"expiry", "Expiry", func(o domain.PendingOrder) string { return stamp(o.Expiry) }},
	},
}

// ClosedSchema is the Closed Positions table.
var ClosedSchema = Schema[domain.ClosedPosition]{
	Name: TableClosed,
	Columns: []Column[domain.ClosedPosition]{
		{"positionId", "Position", func(c domain.ClosedPosition) string { return c.PositionID }},
		{"accountId", "Account ID", func(c domain.ClosedPosition) string { return c.AccountID }},
		{"accountName", "Account", func(c domain.ClosedPosition) string { return c.AccountName }},
		{"symbol", "Symbol", func(c domain.ClosedPosition) string { return c.Symbol }},
		{"direction", "Side", func(c domain.ClosedPosition) string { return string(c.Direction) }},
		{"quantity", "Qty", func(c domain.ClosedPosition) string { return qty(c.Quantity) }},
		{"entryPrice", "Entry", func(c domain.ClosedPosition) string { return price(c.EntryPrice) }},
		{"closePrice", "Close", func(c domain.ClosedPosition) string { return price(c.ClosePrice) }},
		{"profitLoss", "P&L", func(c domain.ClosedPosition) string { return money(c.ProfitLoss) }},
		{"swap", "Swap", func(c domain.ClosedPosition) string { return money(c.Swap) }},
		{"commission", "Commission", func(c domain.ClosedPosition) string { return money(c.Commission) }},
		{"netProfit", "Net", func(c domain.ClosedPosition) string { return money(c.NetProfit) }},
		{"duration", "Duration", func(c domain.ClosedPosition) string { return c.Duration.Round(time.Minute).String() }},
		{"strategy", "Strategy", func(c domain.ClosedPosition) string { return c.Strategy }},
		{"riskLevel", "Risk", func(c domain.ClosedPosition) string { return string(c.RiskLevel) }},
		{"openTime", "Opened", func(c domain.ClosedPosition) string { return stamp(c.OpenTime) }},
		{"closeTime", "Closed", func(c domain.ClosedPosition) string { return stamp(c.CloseTime) }},
		{"status", "Status", func(c domain.ClosedPosition) string { return string(c.Status) }},
	},
}

// ActivitySchema is the activity log table.
var ActivitySchema = Schema[domain.ActivityEntry]{
	Name: TableActivity,
	Columns: []Column[domain.ActivityEntry]{
		{"time", "Time", func(a domain.ActivityEntry) string { return stamp(a.Time) }},
		{"level", "Level", func(a domain.ActivityEntry) string { return string(a.Level) }},
		{"category", "Category", func(a domain.ActivityEntry) string { return string(a.Category) }},
		{"userId", "User", func(a domain.ActivityEntry) string { return a.UserID }},
		{"message", "Message", func(a domain.ActivityEntry) string { return a.Message }},
		{"details", "Details", func(a domain.ActivityEntry) string { return a.Details }},
		{"tags", "Tags", func(a domain.ActivityEntry) string { return strings.Join(a.Tags, ", ") }},
	},
}
