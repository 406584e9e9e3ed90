package domain

import "time"

// CloseType is the execution style requested for a close.
type CloseType string

const (
	CloseMarket CloseType = "market"
	CloseLimit  CloseType = "limit"
	CloseStop   CloseType = "stop"
)

// Valid reports whether t is a known close type.
func (t CloseType) Valid() bool {
	switch t {
	case CloseMarket, CloseLimit, CloseStop:
		return true
	}
	return false
}

// CloseReason is the business reason recorded with a close.
type CloseReason string

const (
	ReasonManual         CloseReason = "manual"
	ReasonTakeProfit     CloseReason = "take_profit"
	ReasonStopLoss       CloseReason = "stop_loss"
	ReasonRiskManagement CloseReason = "risk_management"
	ReasonMarginCall     CloseReason = "margin_call"
	ReasonStrategyExit   CloseReason = "strategy_exit"
	ReasonClientRequest  CloseReason = "client_request"
)

// CloseReasons lists the accepted close reasons in display order.
var CloseReasons = []CloseReason{
	ReasonManual,
	ReasonTakeProfit,
	ReasonStopLoss,
	ReasonRiskManagement,
	ReasonMarginCall,
	ReasonStrategyExit,
	ReasonClientRequest,
}

// Valid reports whether r is one of CloseReasons.
func (r CloseReason) Valid() bool {
	for _, known := range CloseReasons {
		if r == known {
			return true
		}
	}
	return false
}

// CloseIntent is handed to the settlement collaborator when an operator
// confirms a close.
type CloseIntent struct {
	IntentID    string      `json:"intentId"`
	PositionID  string      `json:"positionId"`
	AccountID   string      `json:"accountId"`
	Symbol      string      `json:"symbol"`
	Direction   Direction   `json:"direction"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price"`
	CloseType   CloseType   `json:"closeType"`
	Reason      CloseReason `json:"reason"`
	Comment     string      `json:"comment"`
	Partial     bool        `json:"partial"`
	RequestedAt time.Time   `json:"requestedAt"`
}

// CloseAck is the settlement collaborator's answer to a CloseIntent.
type CloseAck struct {
	IntentID  string          `json:"intentId"`
	Accepted  bool            `json:"accepted"`
	Message   string          `json:"message,omitempty"`
	SettledAt time.Time       `json:"settledAt"`
	Closed    *ClosedPosition `json:"closed,omitempty"`
}
