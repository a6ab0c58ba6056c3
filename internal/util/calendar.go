package util

import (
	"time"
)

// WallClock pins a daily wall-clock time (hour:minute) in a specific
// location.
type WallClock struct {
	loc    *time.Location
	hour   int
	minute int
}

// NewWallClock creates a WallClock for hour:minute in loc. A nil loc means
// UTC.
func NewWallClock(loc *time.Location, hour, minute int) *WallClock {
	if loc == nil {
		loc = time.UTC
	}
	return &WallClock{
		loc:    loc,
		hour:   hour,
		minute: minute,
	}
}

// On returns the instant of the wall-clock time on the given local date.
// Wall times that do not exist because of a DST gap are normalised by
// time.Date (02:30 on a spring-forward night becomes 03:30).
func (w *WallClock) On(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, w.hour, w.minute, 0, 0, w.loc)
}

// Next returns the first occurrence of the wall-clock time at or after t.
func (w *WallClock) Next(t time.Time) time.Time {
	y, m, d := t.In(w.loc).Date()
	at := w.On(y, m, d)
	if at.Before(t) {
		at = w.On(y, m, d+1)
	}
	return at
}
