// Package domain defines the core data types shared across the closer:
// account positions and orders, liquidation results, and dispatch records.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is the lifecycle state of an order at the brokerage.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "canceled"
)

// PositionSide is long or short.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// RunKind identifies which daily trigger produced a RunRecord.
type RunKind string

const (
	RunKindPreAlert RunKind = "pre_alert"
	RunKindClosing  RunKind = "closing"
)

// ---------------------------------------------------------------------------
// Account state
// ---------------------------------------------------------------------------

// Position is an open holding in the trading account.
type Position struct {
	Symbol        string
	Side          PositionSide
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Order is a pending (not yet terminal) order in the trading account.
type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Type      OrderType
	Status    OrderStatus
	Qty       decimal.Decimal
	CreatedAt time.Time
}

// CloseResult is the brokerage's answer to a liquidation request.
type CloseResult struct {
	Symbol      string
	OrderID     string
	Qty         decimal.Decimal
	RealizedPnL decimal.Decimal
}

// ---------------------------------------------------------------------------
// Dispatch records
// ---------------------------------------------------------------------------

// RunRecord summarises one dispatch of a daily trigger. Failures holds one
// human-readable line per position or order that could not be processed.
type RunRecord struct {
	ID        int64     `json:"id"`
	Kind      RunKind   `json:"kind"`
	LocalDate string    `json:"local_date"` // YYYY-MM-DD in the schedule's timezone
	FiredAt   time.Time `json:"fired_at"`

	Positions       int             `json:"positions"` // open positions seen when the run started
	Orders          int             `json:"orders"`    // pending orders seen when the run started
	PositionsClosed int             `json:"positions_closed"`
	PositionsFailed int             `json:"positions_failed"`
	OrdersCancelled int             `json:"orders_cancelled"`
	OrdersFailed    int             `json:"orders_failed"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`

	NotifyStatus string   `json:"notify_status"`
	Failures     []string `json:"failures,omitempty"`
}

// Failed reports whether any part of the run did not succeed.
func (r *RunRecord) Failed() bool {
	return r.PositionsFailed > 0 || r.OrdersFailed > 0 || len(r.Failures) > 0
}
