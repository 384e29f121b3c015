// Package lockout holds the failed-sign-in state machine. All functions are
// pure: callers load the counters, apply a transition and persist the result.
package lockout

import (
	"errors"
	"time"
)

// DefaultThreshold is the number of same-day failures that locks an account.
const DefaultThreshold = 10

// ErrLocked is returned by BeginAttempt for a locked account.
var ErrLocked = errors.New("account locked")

// Day is a calendar date. The zero Day means "no date".
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in loc (UTC when loc is nil).
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the null date.
func (d Day) IsZero() bool {
	return d == Day{}
}

// Time returns midnight of d in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time(time.UTC).Format(time.DateOnly)
}

// State is the slice of a principal that lockout reads and writes.
type State struct {
	Attempts    int
	LastFailure Day
	Locked      bool
}

// Policy carries the threshold. The zero Policy uses DefaultThreshold.
type Policy struct {
	Threshold int
}

func (p Policy) threshold() int {
	if p.Threshold <= 0 {
		return DefaultThreshold
	}
	return p.Threshold
}

// Limit returns the effective threshold.
func (p Policy) Limit() int { return p.threshold() }

// BeginAttempt runs before the password is checked. Counters from an earlier
// day are cleared first, which also lifts a lock those counters caused; a
// lock that is still in force yields ErrLocked. Exempt accounts pass through
// untouched.
func (p Policy) BeginAttempt(s State, exempt bool, today Day) (State, error) {
	if exempt {
		return s, nil
	}
	if s.Attempts > 0 && s.LastFailure != today {
		wasLockoutLock := s.Locked && !s.LastFailure.IsZero()
		s.Attempts = 0
		s.LastFailure = Day{}
		if wasLockoutLock {
			s.Locked = false
		}
	}
	if s.Locked {
		return s, ErrLocked
	}
	return s, nil
}

// RecordFailure counts one failed attempt made today.
func (p Policy) RecordFailure(s State, exempt bool, today Day) State {
	if exempt {
		return s
	}
	if s.LastFailure != today {
		s.Attempts = 0
	}
	if s.Attempts < 0 {
		s.Attempts = 0
	}
	s.Attempts++
	s.LastFailure = today
	if s.Attempts >= p.threshold() {
		s.Locked = true
	}
	return s
}

// RecordSuccess clears the counters after a successful sign-in.
func (p Policy) RecordSuccess(s State, exempt bool) State {
	if exempt {
		return s
	}
	if s.Attempts > 0 {
		s.Attempts = 0
		s.LastFailure = Day{}
	}
	return s
}

// Changed reports whether next differs from prev and must be persisted.
func Changed(prev, next State) bool {
	return prev != next
}

// BeginAttempt applies the default policy.
func BeginAttempt(s State, exempt bool, today Day) (State, error) {
	return Policy{}.BeginAttempt(s, exempt, today)
}

// RecordFailure applies the default policy.
func RecordFailure(s State, exempt bool, today Day) State {
	return Policy{}.RecordFailure(s, exempt, today)
}

// RecordSuccess applies the default policy.
func RecordSuccess(s State, exempt bool) State {
	return Policy{}.RecordSuccess(s, exempt)
}
