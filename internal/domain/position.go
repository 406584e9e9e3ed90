package domain

import (
	"strings"
	"time"
)

// Direction is the side of a position or order.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// RiskLevel is the operator-assigned risk bucket of a record.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskLevels lists the risk buckets in display order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// ParseRiskLevel maps s onto a RiskLevel, ignoring case.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	for _, r := range RiskLevels {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, true
		}
	}
	return "", false
}

// Position represents an open trade with live mark-to-market PnL.
// UnrealizedPnL is supplied by the data source and never recomputed here.
type Position struct {
	ID            string    `json:"id"`
	PositionID    string    `json:"positionId"`
	AccountID     string    `json:"accountId"`
	AccountName   string    `json:"accountName"`
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entryPrice"`
	CurrentPrice  float64   `json:"currentPrice"`
	TakeProfit    float64   `json:"takeProfit"`
	StopLoss      float64   `json:"stopLoss"`
	MarginUsed    float64   `json:"marginUsed"`
	UnrealizedPnL float64   `json:"unrealizedPnL"`
	Leverage      int       `json:"leverage"`
	Strategy      string    `json:"strategy"`
	RiskLevel     RiskLevel `json:"riskLevel"`
	Tags          []string  `json:"tags"`
	OpenTime      time.Time `json:"openTime"`
	DeviceInfo    string    `json:"deviceInfo"`
}

// Clone returns a copy of p that shares no slices with it.
func (p Position) Clone() Position {
	out := p
	out.Tags = cloneTags(p.Tags)
	return out
}

// SearchFields returns the fields matched by free-text search.
func (p Position) SearchFields() []string {
	return []string{p.Symbol, p.AccountName, p.Strategy}
}

// FilterValue returns the value of a discrete filter field.
func (p Position) FilterValue(key string) (string, bool) {
	switch key {
	case "risk":
		return string(p.RiskLevel), true
	case "direction":
		return string(p.Direction), true
	}
	return "", false
}

// RecordID returns the identity used by the stores.
func (p Position) RecordID() string {
	return p.ID
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
