package domain

import "time"

// OrderType is the trigger type of a pending order.
type OrderType string

const (
	OrderTypeLimit OrderType = "Limit"
	OrderTypeStop  OrderType = "Stop"
)

// PendingOrder is an order awaiting a price trigger. It is never executed
// by this system.
type PendingOrder struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Type           Direction `json:"type"`
	Volume         float64   `json:"volume"`
	Price          float64   `json:"price"`
	OrderType      OrderType `json:"orderType"`
	Time           time.Time `json:"time"`
	Expiry         time.Time `json:"expiry"`
	AccountID      string    `json:"accountId"`
	AccountName    string    `json:"accountName"`
	Strategy       string    `json:"strategy"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	MarginRequired float64   `json:"marginRequired"`
	Tags           []string  `json:"tags"`
}

// Clone returns a copy of o that shares no slices with it.
func (o PendingOrder) Clone() PendingOrder {
	out := o
	out.Tags = cloneTags(o.Tags)
	return out
}

// SearchFields returns the fields matched by free-text search.
func (o PendingOrder) SearchFields() []string {
	return []string{o.Symbol, o.AccountName, o.Strategy}
}

// FilterValue returns the value of a discrete filter field.
func (o PendingOrder) FilterValue(key string) (string, bool) {
	switch key {
	case "risk":
		return string(o.RiskLevel), true
	case "type":
		return string(o.Type), true
	case "orderType":
		return string(o.OrderType), true
	}
	return "", false
}

// RecordID returns the identity used by the stores.
func (o PendingOrder) RecordID() string {
	return o.ID
}
