package lockout

import (
	"errors"
	"testing"
	"time"
)

var (
	today     = Day{Year: 2025, Month: time.March, Day: 14}
	yesterday = Day{Year: 2025, Month: time.March, Day: 13}
)

func TestNineFailuresStayActiveTenthLocks(t *testing.T) {
	s := State{}
	for i := 1; i <= 9; i++ {
		s = RecordFailure(s, false, today)
		if s.Locked {
			t.Fatalf("locked after %d failures", i)
		}
		if s.Attempts != i {
			t.Fatalf("expected %d attempts, got %d", i, s.Attempts)
		}
	}

	s = RecordFailure(s, false, today)
	if !s.Locked || s.Attempts != 10 {
		t.Fatalf("expected lock at 10 attempts, got %+v", s)
	}

	if _, err := BeginAttempt(s, false, today); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked on same day, got %v", err)
	}
}

func TestExemptAccountNeverLocks(t *testing.T) {
	s := State{}
	for i := 0; i < 50; i++ {
		s = RecordFailure(s, true, today)
	}
	if s != (State{}) {
		t.Fatalf("exempt account counters must not move, got %+v", s)
	}
	if _, err := BeginAttempt(s, true, today); err != nil {
		t.Fatalf("exempt account blocked: %v", err)
	}
}

func TestDailyWindowResetsBeforeLockCheck(t *testing.T) {
	s := State{Attempts: 5, LastFailure: yesterday}

	next, err := BeginAttempt(s, false, today)
	if err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	if next.Attempts != 0 || !next.LastFailure.IsZero() {
		t.Fatalf("expected counters cleared, got %+v", next)
	}
	if !Changed(s, next) {
		t.Fatal("expected change to be reported")
	}

	next = RecordFailure(next, false, today)
	if next.Attempts != 1 || next.LastFailure != today {
		t.Fatalf("expected single failure today, got %+v", next)
	}
}

func TestRecordFailureResetsStaleCounterWithoutBegin(t *testing.T) {
	s := RecordFailure(State{Attempts: 9, LastFailure: yesterday}, false, today)
	if s.Attempts != 1 || s.Locked {
		t.Fatalf("expected fresh count, got %+v", s)
	}
}

func TestLockFromPreviousDayDoesNotBlock(t *testing.T) {
	s := State{Attempts: 10, LastFailure: yesterday, Locked: true}
	next, err := BeginAttempt(s, false, today)
	if err != nil {
		t.Fatalf("expected stale lockout lifted, got %v", err)
	}
	if next.Locked || next.Attempts != 0 {
		t.Fatalf("unexpected state %+v", next)
	}
}

func TestManualLockIsSticky(t *testing.T) {
	s := State{Locked: true}
	if _, err := BeginAttempt(s, false, today); !errors.Is(err, ErrLocked) {
		t.Fatalf("manual lock must hold, got %v", err)
	}
}

func TestRecordSuccess(t *testing.T) {
	s := RecordSuccess(State{Attempts: 3, LastFailure: today}, false)
	if s.Attempts != 0 || !s.LastFailure.IsZero() {
		t.Fatalf("expected counters cleared, got %+v", s)
	}

	clean := State{}
	if Changed(clean, RecordSuccess(clean, false)) {
		t.Fatal("success with no failures must not require a write")
	}
}

func TestCustomThreshold(t *testing.T) {
	p := Policy{Threshold: 3}
	s := State{}
	for i := 0; i < 3; i++ {
		s = p.RecordFailure(s, false, today)
	}
	if !s.Locked {
		t.Fatalf("expected lock at custom threshold, got %+v", s)
	}
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	ts := time.Date(2025, time.March, 13, 20, 30, 0, 0, time.UTC)
	if got := DayOf(ts, loc); got != today {
		t.Fatalf("expected %v in +07:00, got %v", today, got)
	}
	if got := DayOf(ts, nil); got != yesterday {
		t.Fatalf("expected %v in UTC, got %v", yesterday, got)
	}
	if got := today.String(); got != "2025-03-14" {
		t.Fatalf("unexpected string %q", got)
	}
}
