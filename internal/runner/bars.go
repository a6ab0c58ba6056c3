package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
)

const (
	reconnectBackoff    = 5 * time.Second
	maxReconnectBackoff = 2 * time.Minute
)

// barDialer connects a bar subscription and returns the channel that
// reports its termination.
type barDialer func(ctx context.Context, onBar func(stream.Bar)) (<-chan error, error)

// BarSource turns minute-bar arrivals on the Alpaca data stream into ticks.
// Bars only flow while the market is open, so closing times outside the
// session never see a tick from this source.
type BarSource struct {
	symbols []string
	dial    barDialer
	backoff time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewBarSource creates a BarSource subscribed to minute bars for symbols on
// feed. An empty streamURL uses the SDK default.
func NewBarSource(apiKey, apiSecret, streamURL, feed string, symbols []string, log *slog.Logger) *BarSource {
	if log == nil {
		log = slog.Default()
	}
	syms := append([]string(nil), symbols...)
	dial := func(ctx context.Context, onBar func(stream.Bar)) (<-chan error, error) {
		opts := []stream.StockOption{
			stream.WithCredentials(apiKey, apiSecret),
			stream.WithBars(onBar, syms...),
		}
		if streamURL != "" {
			opts = append(opts, stream.WithBaseURL(streamURL))
		}
		client := stream.NewStocksClient(marketdata.Feed(feed), opts...)
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return client.Terminated(), nil
	}
	return newBarSource(syms, dial, log)
}

func newBarSource(symbols []string, dial barDialer, log *slog.Logger) *BarSource {
	return &BarSource{
		symbols: symbols,
		dial:    dial,
		backoff: reconnectBackoff,
		now:     time.Now,
		log:     log.With("component", "bar-source"),
	}
}

// Name returns "bars".
func (s *BarSource) Name() string { return "bars" }

// Run keeps a bar subscription alive until ctx is cancelled, reconnecting with
// capped exponential backoff when the stream drops. The wall clock, not the
// bar timestamp, is the tick: bars carry the start of their minute.
func (s *BarSource) Run(ctx context.Context, out chan<- time.Time) error {
	onBar := func(b stream.Bar) {
		s.log.Debug("bar", "symbol", b.Symbol, "ts", b.Timestamp)
		offer(out, s.now(), s.log)
	}

	backoff := s.backoff
	for {
		terminated, err := s.dial(ctx, onBar)
		if err == nil {
			s.log.Info("bar stream connected", "symbols", s.symbols)
			backoff = s.backoff
			select {
			case <-ctx.Done():
				// The SDK closes the connection when ctx ends.
				<-terminated
				return nil
			case err = <-terminated:
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("bar stream down, reconnecting", "error", fmt.Sprint(err), "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}
