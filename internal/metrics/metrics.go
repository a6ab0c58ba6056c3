// Package metrics holds the Prometheus collectors for the closer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry so tests and
// multiple instances never collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	Triggers        *prometheus.CounterVec
	PositionsClosed prometheus.Counter
	PositionsFailed prometheus.Counter
	OrdersCancelled prometheus.Counter
	OrdersFailed    prometheus.Counter
	Notifications   *prometheus.CounterVec
	LastTick        prometheus.Gauge
	LastRealizedPnL prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "closer_triggers_total",
			Help: "Daily trigger events emitted, by kind",
		}, []string{"kind"}),
		PositionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closer_positions_closed_total",
			Help: "Positions liquidated by the closing trigger",
		}),
		PositionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closer_positions_failed_total",
			Help: "Positions the closing trigger could not liquidate",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closer_orders_cancelled_total",
			Help: "Pending orders cancelled by the closing trigger",
		}),
		OrdersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "closer_orders_failed_total",
			Help: "Pending orders the closing trigger could not cancel",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "closer_notifications_total",
			Help: "Notification attempts, by delivery status",
		}, []string{"status"}),
		LastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "closer_last_tick_timestamp_seconds",
			Help: "Unix time of the last processed tick",
		}),
		LastRealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "closer_last_realized_pnl",
			Help: "Realized P&L reported by the most recent closing run",
		}),
	}
	m.reg.MustRegister(
		m.Triggers, m.PositionsClosed, m.PositionsFailed,
		m.OrdersCancelled, m.OrdersFailed, m.Notifications,
		m.LastTick, m.LastRealizedPnL,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveTick records the time of a processed tick.
func (m *Metrics) ObserveTick(t time.Time) {
	m.LastTick.Set(float64(t.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
