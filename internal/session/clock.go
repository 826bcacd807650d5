// Package session implements the fixed daily trading-session clock: the
// mapping from wall-clock time to the Asia, London, or New York session.
package session

import (
	"fmt"
	"time"
)

// Session identifies one of the three recurring daily trading sessions.
type Session int

const (
	Asia Session = iota
	London
	NewYork
)

// All lists the sessions in classification order. When windows overlap,
// the earlier entry claims the timestamp.
var All = []Session{Asia, London, NewYork}

func (s Session) String() string {
	switch s {
	case Asia:
		return "asia"
	case London:
		return "london"
	case NewYork:
		return "new_york"
	}
	return "unknown"
}

// Display returns the session name as written in alert messages.
func (s Session) Display() string {
	switch s {
	case Asia:
		return "ASIA"
	case London:
		return "LONDON"
	case NewYork:
		return "NEW YORK"
	}
	return "UNKNOWN"
}

// Parse maps a stored session name back to its Session value.
func Parse(name string) (Session, error) {
	switch name {
	case "asia":
		return Asia, nil
	case "london":
		return London, nil
	case "new_york":
		return NewYork, nil
	}
	return 0, fmt.Errorf("unknown session %q", name)
}

// prior lists, for each session, the sessions that precede it in the
// Asia → London → New York trading sequence.
var prior = map[Session][]Session{
	Asia:    nil,
	London:  {Asia},
	NewYork: {Asia, London},
}

// Prior returns the sessions whose recorded ranges are eligible breakout
// targets while s is the active session. The active session itself is
// never a target.
func Prior(s Session) []Session {
	return prior[s]
}

// Window is a half-open [Start, End) time-of-day range in fractional hours
// (9.5 = 09:30). End <= Start means the window wraps past midnight and
// membership becomes hour >= Start OR hour < End.
type Window struct {
	Start float64
	End   float64
}

// Wraps reports whether the window spans midnight.
func (w Window) Wraps() bool {
	return w.End <= w.Start
}

// Contains reports whether the fractional hour h falls inside the window.
// Start is inclusive, End exclusive.
func (w Window) Contains(h float64) bool {
	if w.Wraps() {
		return h >= w.Start || h < w.End
	}
	return h >= w.Start && h < w.End
}

func (w Window) validate() error {
	if w.Start < 0 || w.Start >= 24 {
		return fmt.Errorf("window start %.2f out of range [0, 24)", w.Start)
	}
	if w.End < 0 || w.End > 24 {
		return fmt.Errorf("window end %.2f out of range [0, 24]", w.End)
	}
	if w.Start == w.End {
		return fmt.Errorf("window start and end must differ, both are %.2f", w.Start)
	}
	return nil
}

// DefaultWindows returns the session windows in UTC-4 civil time:
// Asia 19:00-04:00 (wrapping midnight), London 03:00-12:00,
// New York 09:30-16:00. 16:00-19:00 belongs to no session.
func DefaultWindows() map[Session]Window {
	return map[Session]Window{
		Asia:    {Start: 19.0, End: 4.0},
		London:  {Start: 3.0, End: 12.0},
		NewYork: {Start: 9.5, End: 16.0},
	}
}

// Clock classifies timestamps into sessions. Every comparison happens in
// one fixed, DST-naive reference timezone; only the time of day matters.
type Clock struct {
	loc     *time.Location
	windows map[Session]Window
}

// NewClock builds a clock for the given UTC offset (whole hours) and
// window set. A malformed configuration is a startup error, not something
// recoverable per tick.
func NewClock(utcOffsetHours int, windows map[Session]Window) (*Clock, error) {
	if utcOffsetHours < -12 || utcOffsetHours > 14 {
		return nil, fmt.Errorf("utc offset %d out of range [-12, 14]", utcOffsetHours)
	}
	if windows == nil {
		windows = DefaultWindows()
	}
	copied := make(map[Session]Window, len(All))
	for _, s := range All {
		w, ok := windows[s]
		if !ok {
			return nil, fmt.Errorf("missing window for %s session", s)
		}
		if err := w.validate(); err != nil {
			return nil, fmt.Errorf("%s session: %w", s, err)
		}
		copied[s] = w
	}
	name := fmt.Sprintf("UTC%+d", utcOffsetHours)
	return &Clock{
		loc:     time.FixedZone(name, utcOffsetHours*3600),
		windows: copied,
	}, nil
}

// HourOf returns t's time of day in the reference timezone as fractional
// hours, at minute resolution.
func (c *Clock) HourOf(t time.Time) float64 {
	t = t.In(c.loc)
	return float64(t.Hour()) + float64(t.Minute())/60.0
}

// Classify maps a timestamp to the session active at that time of day.
// The second return value is false when t falls in a gap between windows.
func (c *Clock) Classify(t time.Time) (Session, bool) {
	h := c.HourOf(t)
	for _, s := range All {
		if c.windows[s].Contains(h) {
			return s, true
		}
	}
	return 0, false
}

// Window returns the configured window for s.
func (c *Clock) Window(s Session) Window {
	return c.windows[s]
}

// TradingDay returns the identifier of the trading day t belongs to: the
// calendar date in the reference timezone, except that the pre-midnight
// segment of a wrapping session is attributed to the day the session ends
// on. Range and ledger state is scoped to this identifier.
func (c *Clock) TradingDay(t time.Time) string {
	t = t.In(c.loc)
	if s, ok := c.Classify(t); ok {
		w := c.windows[s]
		if w.Wraps() && c.HourOf(t) >= w.Start {
			t = t.AddDate(0, 0, 1)
		}
	}
	return t.Format("2006-01-02")
}
