package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"eodcloser/internal/util"
)

const secondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock time expressed as seconds since local midnight,
// always in [0, 86400).
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay, wrapping values outside one day.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return wrap(hour*3600 + minute*60 + second)
}

// ClockOf returns the wall-clock time of t in t's own location.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return NewTimeOfDay(h, m, s)
}

// Add shifts the time of day by d, wrapping around midnight.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return wrap(int(t) + int(d/time.Second))
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 3600 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), int(t)%60)
}

func wrap(secs int) TimeOfDay {
	secs %= secondsPerDay
	if secs < 0 {
		secs += secondsPerDay
	}
	return TimeOfDay(secs)
}

// InWindow reports whether tod lies in [start, start+width), measured on a
// 24-hour clock so a window may straddle midnight.
func InWindow(tod, start TimeOfDay, width time.Duration) bool {
	return int(wrap(int(tod)-int(start))) < int(width/time.Second)
}

// Date is a local calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Decision is the scheduler's verdict for one instant.
type Decision struct {
	Local     time.Time // instant converted into the schedule's zone
	Date      Date
	InAlert   bool
	InClosing bool
}

// Scheduler decides window membership for a fixed daily schedule.
type Scheduler struct {
	loc     *time.Location
	lead    time.Duration
	width   time.Duration
	closeAt TimeOfDay
	alertAt TimeOfDay
	closing *util.WallClock
	alert   *util.WallClock
}

// New validates cfg and builds a Scheduler. An unresolvable timezone is not
// fatal: a warning is logged and DefaultTimezone is used instead.
func New(cfg Config, log *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		log.Warn("unknown timezone, falling back to default",
			"timezone", cfg.Timezone, "fallback", DefaultTimezone, "error", err)
		loc = time.UTC
	}

	lead := time.Duration(cfg.LeadMinutes) * time.Minute
	closeAt := NewTimeOfDay(cfg.CloseHour, cfg.CloseMinute, 0)
	alertAt := closeAt.Add(-lead)

	return &Scheduler{
		loc:     loc,
		lead:    lead,
		width:   time.Duration(cfg.windowMinutes()) * time.Minute,
		closeAt: closeAt,
		alertAt: alertAt,
		closing: util.NewWallClock(loc, closeAt.Hour(), closeAt.Minute()),
		alert:   util.NewWallClock(loc, alertAt.Hour(), alertAt.Minute()),
	}, nil
}

// Location returns the zone the schedule is evaluated in.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Lead returns the pre-alert lead time.
func (s *Scheduler) Lead() time.Duration { return s.lead }

// Width returns the window width.
func (s *Scheduler) Width() time.Duration { return s.width }

// CloseAt returns the closing time of day.
func (s *Scheduler) CloseAt() TimeOfDay { return s.closeAt }

// AlertAt returns the pre-alert time of day.
func (s *Scheduler) AlertAt() TimeOfDay { return s.alertAt }

// Windows reports membership of a local time of day in the alert and
// closing windows. It has no side effects.
func (s *Scheduler) Windows(tod TimeOfDay) (inAlert, inClosing bool) {
	return InWindow(tod, s.alertAt, s.width), InWindow(tod, s.closeAt, s.width)
}

// Check converts now into the schedule's zone, applying whatever UTC offset
// is in force at that instant, and evaluates both windows.
func (s *Scheduler) Check(now time.Time) Decision {
	local := now.In(s.loc)
	inAlert, inClosing := s.Windows(ClockOf(local))
	return Decision{
		Local:     local,
		Date:      DateOf(local),
		InAlert:   inAlert,
		InClosing: inClosing,
	}
}

// NextClosing returns the next closing instant at or after now.
func (s *Scheduler) NextClosing(now time.Time) time.Time {
	return s.closing.Next(now)
}

// NextAlert returns the next pre-alert instant at or after now.
func (s *Scheduler) NextAlert(now time.Time) time.Time {
	return s.alert.Next(now)
}
