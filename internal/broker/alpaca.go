package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"eodcloser/internal/domain"
	"eodcloser/internal/util"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// openOrdersLimit is the largest page the Alpaca orders endpoint serves.
const openOrdersLimit = 500

// AlpacaBroker implements the Broker interface using the Alpaca trading API.
// Every request waits on a shared rate limiter first.
type AlpacaBroker struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoint. perMinute caps the request rate.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string, perMinute int) *AlpacaBroker {
	if perMinute <= 0 {
		perMinute = 200
	}
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		limiter: util.NewRateLimiter(perMinute),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// ListPositions returns all current positions from the Alpaca account.
func (b *AlpacaBroker) ListPositions(ctx context.Context) ([]domain.Position, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("GetPositions: %w", err)
	}
	out := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		out = append(out, positionFromAlpaca(p))
	}
	return out, nil
}

// ListOpenOrders returns all working orders from the Alpaca account.
func (b *AlpacaBroker) ListOpenOrders(ctx context.Context) ([]domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := b.client.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  openOrdersLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("GetOrders: %w", err)
	}
	out := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		out = append(out, orderFromAlpaca(o))
	}
	return out, nil
}

// ClosePosition submits a market liquidation for the full position. Alpaca
// does not report realized P&L on the close order, so the position's
// unrealized P&L at request time is used.
func (b *AlpacaBroker) ClosePosition(ctx context.Context, pos domain.Position) (domain.CloseResult, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return domain.CloseResult{}, err
	}
	order, err := b.client.ClosePosition(pos.Symbol, alpaca.ClosePositionRequest{})
	if err != nil {
		return domain.CloseResult{}, fmt.Errorf("ClosePosition %s: %w", pos.Symbol, err)
	}
	res := domain.CloseResult{
		Symbol:      pos.Symbol,
		Qty:         pos.Qty,
		RealizedPnL: pos.UnrealizedPnL,
	}
	if order != nil {
		res.OrderID = order.ID
	}
	return res, nil
}

// CancelOrder requests cancellation of an open order via the Alpaca API.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("CancelOrder %s: %w", orderID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func positionFromAlpaca(p alpaca.Position) domain.Position {
	side := domain.PositionSideLong
	if p.Side == "short" {
		side = domain.PositionSideShort
	}
	return domain.Position{
		Symbol:        p.Symbol,
		Side:          side,
		Qty:           p.Qty,
		AvgEntryPrice: p.AvgEntryPrice,
		UnrealizedPnL: derefDecimal(p.UnrealizedPL),
	}
}

func orderFromAlpaca(o alpaca.Order) domain.Order {
	return domain.Order{
		ID:        o.ID,
		Symbol:    o.Symbol,
		Side:      domain.OrderSide(o.Side),
		Type:      domain.OrderType(o.Type),
		Status:    domain.OrderStatus(o.Status),
		Qty:       derefDecimal(o.Qty),
		CreatedAt: o.CreatedAt,
	}
}

func derefDecimal(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
