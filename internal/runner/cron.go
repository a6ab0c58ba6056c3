package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Source delivers ticks into out until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- time.Time) error
}

// offer sends t without blocking. A busy runner loses the tick; the next
// one arrives within the window anyway.
func offer(out chan<- time.Time, t time.Time, log *slog.Logger) bool {
	select {
	case out <- t:
		return true
	default:
		log.Warn("runner busy, tick dropped", "tick", t)
		return false
	}
}

// CronSource ticks on a fixed interval through a cron scheduler.
type CronSource struct {
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// NewCronSource creates a CronSource. Intervals under a second are rounded
// up because cron schedules have second resolution.
func NewCronSource(interval time.Duration, loc *time.Location, log *slog.Logger) *CronSource {
	if interval < time.Second {
		interval = time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronSource{
		interval: interval,
		loc:      loc,
		now:      time.Now,
		log:      log.With("component", "cron-source"),
	}
}

// Name returns "cron".
func (s *CronSource) Name() string { return "cron" }

// Expr returns the cron expression the source registers.
func (s *CronSource) Expr() string {
	return "@every " + s.interval.String()
}

// Run emits one tick immediately, then one per interval.
func (s *CronSource) Run(ctx context.Context, out chan<- time.Time) error {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.Expr(), func() { offer(out, s.now(), s.log) }); err != nil {
		return fmt.Errorf("registering tick job %q: %w", s.Expr(), err)
	}

	offer(out, s.now(), s.log)
	c.Start()
	s.log.Info("cron ticks started", "expr", s.Expr(), "location", s.loc.String())

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.log.Info("cron ticks stopped")
	return nil
}
