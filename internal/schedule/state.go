package schedule

import "time"

// Kind identifies a trigger event.
type Kind int

const (
	PreAlert Kind = iota + 1
	Closing
)

func (k Kind) String() string {
	switch k {
	case PreAlert:
		return "pre_alert"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Event is a rising edge of one window on one local date.
type Event struct {
	Kind Kind
	At   time.Time // local time of the tick that fired the event
	Date Date
	// Liquidate is set on Closing events: the receiver must now enumerate
	// and act on the account's open positions and pending orders.
	Liquidate bool
}

// Phase is the day's progress as seen by State.
type Phase int

const (
	Idle Phase = iota
	PreAlerted
	Closed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PreAlerted:
		return "pre_alerted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// State tracks which windows already fired on the current local date. The
// zero value is ready to use; the first observed date is adopted as-is.
//
// State is not safe for concurrent use. A fresh State after a restart knows
// nothing about earlier fires that day.
type State struct {
	date          Date
	preAlertFired bool
	closingFired  bool
}

// Observe applies one scheduler decision and returns the events it causes,
// PreAlert before Closing when both windows are active at once.
//
// A decision carrying a different date than the stored one resets both
// flags first, however long the gap between ticks was.
func (s *State) Observe(d Decision) []Event {
	if d.Date != s.date {
		s.date = d.Date
		s.preAlertFired = false
		s.closingFired = false
	}

	var events []Event
	if d.InAlert && !s.preAlertFired {
		s.preAlertFired = true
		events = append(events, Event{Kind: PreAlert, At: d.Local, Date: d.Date})
	}
	// Independent of the alert: a missed alert never blocks the close.
	if d.InClosing && !s.closingFired {
		s.closingFired = true
		events = append(events, Event{Kind: Closing, At: d.Local, Date: d.Date, Liquidate: true})
	}
	return events
}

// Phase returns the progress for the current date.
func (s *State) Phase() Phase {
	switch {
	case s.closingFired:
		return Closed
	case s.preAlertFired:
		return PreAlerted
	default:
		return Idle
	}
}

// Date returns the local date the flags currently apply to.
func (s *State) Date() Date { return s.date }

// PreAlertFired reports whether the pre-alert fired on the current date.
func (s *State) PreAlertFired() bool { return s.preAlertFired }

// ClosingFired reports whether the closing trigger fired on the current date.
func (s *State) ClosingFired() bool { return s.closingFired }
