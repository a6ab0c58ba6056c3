// Package runner turns a stream of ticks into trigger dispatches. A single
// goroutine owns the daily trigger state; status readers only ever see
// copies.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eodcloser/internal/domain"
	"eodcloser/internal/metrics"
	"eodcloser/internal/schedule"
)

// Dispatcher performs the work behind a trigger event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev schedule.Event) domain.RunRecord
}

// Snapshot is a point-in-time view of the runner for status endpoints.
type Snapshot struct {
	Timezone      string            `json:"timezone"`
	Local         time.Time         `json:"local_time"`
	Date          string            `json:"date"`
	Phase         string            `json:"phase"`
	PreAlertFired bool              `json:"pre_alert_fired"`
	ClosingFired  bool              `json:"closing_fired"`
	NextAlert     time.Time         `json:"next_alert"`
	NextClose     time.Time         `json:"next_close"`
	LastTick      time.Time         `json:"last_tick"`
	Ticks         int64             `json:"ticks"`
	LastRun       *domain.RunRecord `json:"last_run,omitempty"`
	Running       bool              `json:"running"`
}

// Runner evaluates ticks against the scheduler and dispatches the events
// they produce synchronously, in order.
type Runner struct {
	sched   *schedule.Scheduler
	disp    Dispatcher
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger

	mu       sync.RWMutex
	state    schedule.State
	lastTick time.Time
	ticks    int64
	lastRun  *domain.RunRecord
	running  bool
}

// New creates a Runner. timeout bounds each dispatch; zero means no bound.
func New(sched *schedule.Scheduler, disp Dispatcher, met *metrics.Metrics, timeout time.Duration, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		sched:   sched,
		disp:    disp,
		metrics: met,
		timeout: timeout,
		now:     time.Now,
		log:     log.With("component", "runner"),
	}
}

// Tick processes one tick. Events are dispatched after the trigger flags are
// set, so a dispatch that fails or panics never fires again the same day.
func (r *Runner) Tick(ctx context.Context, now time.Time) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("tick panicked", "panic", fmt.Sprint(p), "tick", now)
		}
	}()

	d := r.sched.Check(now)

	r.mu.Lock()
	prev := r.state.Date()
	events := r.state.Observe(d)
	r.lastTick = now
	r.ticks++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveTick(now)
	}
	if !prev.IsZero() && prev != d.Date {
		r.log.Info("new trading day", "date", d.Date.String(), "previous", prev.String())
	}

	for _, ev := range events {
		r.log.Info("trigger fired", "kind", ev.Kind.String(), "date", ev.Date.String(), "local", d.Local.Format(time.DateTime))
		rec := r.dispatch(ctx, ev)
		r.mu.Lock()
		r.lastRun = &rec
		r.mu.Unlock()
	}
}

func (r *Runner) dispatch(ctx context.Context, ev schedule.Event) domain.RunRecord {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.disp.Dispatch(ctx, ev)
}

// Run consumes ticks until ctx is cancelled or the channel closes. It always
// returns nil so it can sit in an errgroup without tearing the group down.
func (r *Runner) Run(ctx context.Context, ticks <-chan time.Time) error {
	r.setRunning(true)
	defer r.setRunning(false)

	r.log.Info("runner started",
		"timezone", r.sched.Location().String(),
		"alert_at", r.sched.AlertAt().String(),
		"close_at", r.sched.CloseAt().String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("runner stopped")
			return nil
		case t, ok := <-ticks:
			if !ok {
				r.log.Info("tick channel closed")
				return nil
			}
			r.Tick(ctx, t)
		}
	}
}

func (r *Runner) setRunning(v bool) {
	r.mu.Lock()
	r.running = v
	r.mu.Unlock()
}

// Running reports whether Run is consuming ticks.
func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Snapshot returns the current state. It is safe to call from any goroutine.
func (r *Runner) Snapshot() Snapshot {
	now := r.now()
	d := r.sched.Check(now)

	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Timezone:      r.sched.Location().String(),
		Local:         d.Local,
		Date:          d.Date.String(),
		Phase:         r.state.Phase().String(),
		PreAlertFired: r.state.PreAlertFired(),
		ClosingFired:  r.state.ClosingFired(),
		NextAlert:     r.sched.NextAlert(now),
		NextClose:     r.sched.NextClosing(now),
		LastTick:      r.lastTick,
		Ticks:         r.ticks,
		Running:       r.running,
	}
	// Flags belong to the last observed date; a new day has not fired yet.
	if r.state.Date() != d.Date {
		s.Phase = schedule.Idle.String()
		s.PreAlertFired = false
		s.ClosingFired = false
	}
	if r.lastRun != nil {
		rec := *r.lastRun
		rec.Failures = append([]string(nil), r.lastRun.Failures...)
		s.LastRun = &rec
	}
	return s
}
