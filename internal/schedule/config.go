// Package schedule turns a coarse, irregular stream of ticks into at most one
// pre-alert and one closing event per local calendar day.
//
// Scheduler answers the stateless question "is this instant inside a
// window?" and State remembers what already fired today. Both are meant to be
// driven from a single goroutine; neither performs I/O.
package schedule

import (
	"errors"
	"fmt"
)

// DefaultTimezone is used when the configured timezone cannot be resolved.
const DefaultTimezone = "UTC"

// DefaultWindowMinutes is the width of both windows when none is configured.
// Ticks must arrive at least this often or a window can be skipped.
const DefaultWindowMinutes = 2

const minutesPerDay = 24 * 60

// ErrInvalidConfig is wrapped by every validation failure from Config.Validate.
var ErrInvalidConfig = errors.New("invalid schedule config")

// Config describes one daily closing schedule.
type Config struct {
	Timezone      string // IANA zone name, e.g. "America/New_York"
	CloseHour     int
	CloseMinute   int
	LeadMinutes   int // pre-alert lead before the close
	WindowMinutes int // width of each window; 0 means DefaultWindowMinutes
}

// windowMinutes returns the effective window width.
func (c Config) windowMinutes() int {
	if c.WindowMinutes == 0 {
		return DefaultWindowMinutes
	}
	return c.WindowMinutes
}

// Validate checks ranges. A lead long enough for the alert window to reach
// back into the previous closing window is rejected.
func (c Config) Validate() error {
	if c.CloseHour < 0 || c.CloseHour > 23 {
		return fmt.Errorf("%w: close hour %d out of range [0,23]", ErrInvalidConfig, c.CloseHour)
	}
	if c.CloseMinute < 0 || c.CloseMinute > 59 {
		return fmt.Errorf("%w: close minute %d out of range [0,59]", ErrInvalidConfig, c.CloseMinute)
	}
	w := c.windowMinutes()
	if w < 1 || w > 60 {
		return fmt.Errorf("%w: window width %d minutes out of range [1,60]", ErrInvalidConfig, w)
	}
	if c.LeadMinutes < 1 {
		return fmt.Errorf("%w: pre-alert lead must be at least 1 minute, got %d", ErrInvalidConfig, c.LeadMinutes)
	}
	if c.LeadMinutes > minutesPerDay-w {
		return fmt.Errorf("%w: pre-alert lead %d minutes overlaps the previous day's closing window (max %d)",
			ErrInvalidConfig, c.LeadMinutes, minutesPerDay-w)
	}
	return nil
}
