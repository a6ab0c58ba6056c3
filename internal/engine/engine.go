// Package engine reacts to daily trigger events: it warns ahead of the
// close, then flattens the trading account and reports the outcome.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"eodcloser/internal/broker"
	"eodcloser/internal/domain"
	"eodcloser/internal/metrics"
	"eodcloser/internal/notify"
	"eodcloser/internal/schedule"
	"eodcloser/internal/store"
)

// saveTimeout bounds journaling, which runs detached from the dispatch
// deadline so a timed-out run is still recorded.
const saveTimeout = 10 * time.Second

// Engine dispatches trigger events to the broker, the messenger and the run
// journal. A failure on one position or order never stops the rest, and
// Dispatch never returns an error: every outcome lands in the RunRecord.
type Engine struct {
	broker    broker.Broker
	messenger notify.Messenger
	runs      store.RunStore
	sched     *schedule.Scheduler
	metrics   *metrics.Metrics
	verbose   bool
	log       *slog.Logger
}

// NewEngine creates a new Engine wired with the given dependencies. runs
// may be nil to skip journaling; a nil met gets a private registry.
func NewEngine(
	b broker.Broker,
	m notify.Messenger,
	runs store.RunStore,
	sched *schedule.Scheduler,
	met *metrics.Metrics,
	log *slog.Logger,
	verbose bool,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = metrics.New()
	}
	return &Engine{
		broker:    b,
		messenger: m,
		runs:      runs,
		sched:     sched,
		metrics:   met,
		verbose:   verbose,
		log:       log.With("component", "engine", "broker", b.Name()),
	}
}

// Dispatch handles one trigger event synchronously.
func (e *Engine) Dispatch(ctx context.Context, ev schedule.Event) domain.RunRecord {
	e.metrics.Triggers.WithLabelValues(ev.Kind.String()).Inc()

	var rec domain.RunRecord
	switch ev.Kind {
	case schedule.PreAlert:
		rec = e.preAlert(ctx, ev)
	case schedule.Closing:
		rec = e.closing(ctx, ev)
	default:
		e.log.Error("unknown trigger kind", "kind", int(ev.Kind))
		return rec
	}

	e.save(ctx, &rec)
	return rec
}

func (e *Engine) preAlert(ctx context.Context, ev schedule.Event) domain.RunRecord {
	rec := domain.RunRecord{
		Kind:      domain.RunKindPreAlert,
		LocalDate: ev.Date.String(),
		FiredAt:   ev.At,
	}

	positions, orders := e.snapshot(ctx, &rec)
	e.log.Info("pre-alert",
		"date", rec.LocalDate, "positions", len(positions), "orders", len(orders))

	closeAt := e.sched.NextClosing(ev.At)
	rec.NotifyStatus = string(e.notify(ctx, FormatPreAlert(&rec, e.sched.Lead(), closeAt)))
	return rec
}

func (e *Engine) closing(ctx context.Context, ev schedule.Event) domain.RunRecord {
	rec := domain.RunRecord{
		Kind:        domain.RunKindClosing,
		LocalDate:   ev.Date.String(),
		FiredAt:     ev.At,
		RealizedPnL: decimal.Zero,
	}

	positions, orders := e.snapshot(ctx, &rec)
	e.log.Info("closing started",
		"date", rec.LocalDate, "positions", len(positions), "orders", len(orders))

	// Working orders go first: shares held by an open sell order cannot be
	// liquidated, and the liquidation orders themselves must not be cancelled.
	for _, o := range orders {
		if err := e.broker.CancelOrder(ctx, o.ID); err != nil {
			rec.OrdersFailed++
			rec.Failures = append(rec.Failures, fmt.Sprintf("cancel %s %s: %v", o.Symbol, o.ID, err))
			e.metrics.OrdersFailed.Inc()
			e.log.Warn("cancel order failed", "order", o.ID, "symbol", o.Symbol, "error", err)
			continue
		}
		rec.OrdersCancelled++
		e.metrics.OrdersCancelled.Inc()
		e.itemLog("order cancelled", "order", o.ID, "symbol", o.Symbol)
	}

	for _, p := range positions {
		res, err := e.broker.ClosePosition(ctx, p)
		if err != nil {
			rec.PositionsFailed++
			rec.Failures = append(rec.Failures, fmt.Sprintf("close %s: %v", p.Symbol, err))
			e.metrics.PositionsFailed.Inc()
			e.log.Warn("close position failed", "symbol", p.Symbol, "qty", p.Qty.String(), "error", err)
			continue
		}
		rec.PositionsClosed++
		rec.RealizedPnL = rec.RealizedPnL.Add(res.RealizedPnL)
		e.metrics.PositionsClosed.Inc()
		e.itemLog("position closed",
			"symbol", p.Symbol, "qty", res.Qty.String(), "pnl", res.RealizedPnL.String(), "order", res.OrderID)
	}

	pnl, _ := rec.RealizedPnL.Float64()
	e.metrics.LastRealizedPnL.Set(pnl)

	e.log.Info("closing finished",
		"date", rec.LocalDate,
		"closed", rec.PositionsClosed, "close_failed", rec.PositionsFailed,
		"cancelled", rec.OrdersCancelled, "cancel_failed", rec.OrdersFailed,
		"pnl", rec.RealizedPnL.StringFixed(2))

	// The next run is tomorrow's close; ev.At sits inside today's window.
	next := e.sched.NextClosing(ev.At.Add(e.sched.Width()))
	rec.NotifyStatus = string(e.notify(ctx, FormatClosing(&rec, next)))
	return rec
}

// snapshot lists positions and orders, recording listing failures. A count
// of -1 in rec means the listing failed.
func (e *Engine) snapshot(ctx context.Context, rec *domain.RunRecord) ([]domain.Position, []domain.Order) {
	positions, err := e.broker.ListPositions(ctx)
	if err != nil {
		rec.Positions = -1
		rec.Failures = append(rec.Failures, fmt.Sprintf("list positions: %v", err))
		e.log.Error("listing positions failed", "error", err)
	} else {
		rec.Positions = len(positions)
	}

	orders, err := e.broker.ListOpenOrders(ctx)
	if err != nil {
		rec.Orders = -1
		rec.Failures = append(rec.Failures, fmt.Sprintf("list orders: %v", err))
		e.log.Error("listing orders failed", "error", err)
	} else {
		rec.Orders = len(orders)
	}
	return positions, orders
}

func (e *Engine) notify(ctx context.Context, text string) notify.Status {
	status := e.messenger.Send(ctx, text)
	e.metrics.Notifications.WithLabelValues(string(status)).Inc()
	if !status.Delivered() && status != notify.StatusDisabled {
		e.log.Warn("notification not delivered", "status", status)
	}
	return status
}

func (e *Engine) save(ctx context.Context, rec *domain.RunRecord) {
	if e.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := e.runs.SaveRun(ctx, rec); err != nil {
		e.log.Error("saving run record", "kind", rec.Kind, "error", err)
	}
}

// itemLog logs per-position and per-order lines at info in verbose mode and
// at debug otherwise.
func (e *Engine) itemLog(msg string, args ...any) {
	if e.verbose {
		e.log.Info(msg, args...)
		return
	}
	e.log.Debug(msg, args...)
}
