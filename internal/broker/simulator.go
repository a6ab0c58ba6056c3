package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"eodcloser/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for paper trading, dry
// runs and tests. It keeps positions and orders in memory and can be told to
// fail specific symbols or order IDs.
type SimulatorBroker struct {
	mu         sync.Mutex
	positions  map[string]*domain.Position
	orders     map[string]*domain.Order
	failClose  map[string]error
	failCancel map[string]error
	listErr    error
}

// NewSimulatorBroker creates a new SimulatorBroker with empty position and
// order maps.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{
		positions:  make(map[string]*domain.Position),
		orders:     make(map[string]*domain.Order),
		failClose:  make(map[string]error),
		failCancel: make(map[string]error),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// AddPosition seeds an open position.
func (b *SimulatorBroker) AddPosition(p domain.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := p
	b.positions[p.Symbol] = &cp
}

// AddOrder seeds a working order. Orders without a status become "new".
func (b *SimulatorBroker) AddOrder(o domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := o
	if cp.Status == "" {
		cp.Status = domain.OrderStatusNew
	}
	b.orders[o.ID] = &cp
}

// FailClose makes ClosePosition return err for symbol.
func (b *SimulatorBroker) FailClose(symbol string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failClose[symbol] = err
}

// FailCancel makes CancelOrder return err for orderID.
func (b *SimulatorBroker) FailCancel(orderID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failCancel[orderID] = err
}

// FailList makes both listing calls return err; nil clears it.
func (b *SimulatorBroker) FailList(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// ListPositions returns all simulated positions sorted by symbol.
func (b *SimulatorBroker) ListPositions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// ListOpenOrders returns all simulated orders that are not yet terminal,
// sorted by ID.
func (b *SimulatorBroker) ListOpenOrders(_ context.Context) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	orders := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		if o.Status == domain.OrderStatusCancelled || o.Status == domain.OrderStatusFilled {
			continue
		}
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// ClosePosition removes the position and realizes its unrealized P&L.
func (b *SimulatorBroker) ClosePosition(_ context.Context, pos domain.Position) (domain.CloseResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failClose[pos.Symbol]; err != nil {
		return domain.CloseResult{}, err
	}
	held, ok := b.positions[pos.Symbol]
	if !ok {
		return domain.CloseResult{}, fmt.Errorf("position %s: %w", pos.Symbol, ErrNotFound)
	}
	delete(b.positions, pos.Symbol)
	return domain.CloseResult{
		Symbol:      held.Symbol,
		OrderID:     "sim-close-" + held.Symbol,
		Qty:         held.Qty,
		RealizedPnL: held.UnrealizedPnL,
	}, nil
}

// CancelOrder marks the specified order as cancelled in the in-memory store.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failCancel[orderID]; err != nil {
		return err
	}
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	o.Status = domain.OrderStatusCancelled
	return nil
}
