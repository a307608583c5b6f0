package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// NormalizeSide maps the gateway's execution side codes (BOT/SLD) and plain
// BUY/SELL onto OrderSide. Unknown input yields the empty side.
func NormalizeSide(raw string) OrderSide {
	switch raw {
	case "BOT", "BUY":
		return SideBuy
	case "SLD", "SELL":
		return SideSell
	}
	return ""
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderMarket    OrderType = "MKT"
	OrderLimit     OrderType = "LMT"
	OrderStop      OrderType = "STP"
	OrderStopLimit OrderType = "STP LMT"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusInactive        OrderStatus = "INACTIVE"
	StatusUnknown         OrderStatus = "UNKNOWN"
)

// Terminal reports whether no further transition is valid from the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusInactive:
		return true
	}
	return false
}

// ParseOrderStatus maps a gateway status string plus the filled quantity onto
// the local state machine. The gateway reports partial fills as Submitted
// with a nonzero filled amount, not as a distinct status.
func ParseOrderStatus(wire string, filled decimal.Decimal) OrderStatus {
	switch wire {
	case "PendingSubmit", "PreSubmitted":
		return StatusPending
	case "Submitted", "PendingCancel":
		if filled.IsPositive() {
			return StatusPartiallyFilled
		}
		return StatusSubmitted
	case "Filled":
		return StatusFilled
	case "Cancelled", "ApiCancelled":
		return StatusCancelled
	case "Inactive":
		return StatusInactive
	}
	return StatusUnknown
}

// Order is one tracked order. Orders are never deleted, only transitioned.
type Order struct {
	ID           int64           `json:"order_id"`
	Ref          string          `json:"ref"`
	Symbol       string          `json:"symbol"`
	Side         OrderSide       `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Type         OrderType       `json:"order_type"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	StopPrice    decimal.Decimal `json:"stop_price"`
	TIF          string          `json:"tif"`
	Status       OrderStatus     `json:"status"`
	Filled       decimal.Decimal `json:"filled"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	SubmittedAt  time.Time       `json:"submitted_at"`
}

// Open reports whether the order can still trade or be cancelled.
func (o *Order) Open() bool {
	return !o.Status.Terminal()
}
