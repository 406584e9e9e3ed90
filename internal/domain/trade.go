package domain

import "time"

// ClosedStatus is the terminal status of a closed position.
type ClosedStatus string

const ClosedStatusCompleted ClosedStatus = "Completed"

// ClosedPosition is a completed, immutable trade record.
type ClosedPosition struct {
	Position
	ClosePrice float64       `json:"closePrice"`
	CloseTime  time.Time     `json:"closeTime"`
	ProfitLoss float64       `json:"profitLoss"`
	Swap       float64       `json:"swap"`
	Commission float64       `json:"commission"`
	NetProfit  float64       `json:"netProfit"`
	Duration   time.Duration `json:"duration"`
	Status     ClosedStatus  `json:"status"`
}

// Clone returns a copy of c that shares no slices with it.
func (c ClosedPosition) Clone() ClosedPosition {
	out := c
	out.Position = c.Position.Clone()
	return out
}

// FilterValue returns the value of a discrete filter field.
func (c ClosedPosition) FilterValue(key string) (string, bool) {
	if key == "status" {
		return string(c.Status), true
	}
	return c.Position.FilterValue(key)
}

// Won reports whether the trade closed with a positive gross result.
func (c ClosedPosition) Won() bool {
	return c.ProfitLoss > 0
}

// RealizedPnL returns the gross profit or loss of closing qty units of p at
// price, signed by the position direction.
func RealizedPnL(p Position, qty, price float64) float64 {
	if p.Direction == DirectionSell {
		return (p.EntryPrice - price) * qty
	}
	return (price - p.EntryPrice) * qty
}
