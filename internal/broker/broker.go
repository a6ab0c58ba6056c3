// Package broker defines the Broker interface over a trading account and
// provides implementations backed by Alpaca and by an in-memory simulator.
package broker

import (
	"context"
	"errors"

	"eodcloser/internal/domain"
)

// ErrNotFound is returned when a position or order does not exist.
var ErrNotFound = errors.New("not found")

// Broker abstracts the trading-account operations needed to flatten an
// account at the end of the day.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// ListPositions returns all open positions.
	ListPositions(ctx context.Context) ([]domain.Position, error)

	// ListOpenOrders returns all orders that are still working.
	ListOpenOrders(ctx context.Context) ([]domain.Order, error)

	// ClosePosition liquidates the whole position and reports the realized
	// P&L of doing so.
	ClosePosition(ctx context.Context, pos domain.Position) (domain.CloseResult, error)

	// CancelOrder requests cancellation of a working order by its ID.
	CancelOrder(ctx context.Context, orderID string) error
}
