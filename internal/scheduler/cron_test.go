package scheduler

import (
	"testing"
	"time"
)

func TestDailyNineAM(t *testing.T) {
	s, err := ParseSchedule("0 0 9 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	from := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, err := s.Next(from)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestMondaysMidnight(t *testing.T) {
	s, err := ParseSchedule("0 0 0 * * 1 *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// 2026-07-31 is a Friday.
	from := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	next, err := s.Next(from)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.Weekday() != time.Monday || next.Hour() != 0 {
		t.Fatalf("expected next Monday midnight, got %v (%s)", next, next.Weekday())
	}
}

func TestEveryFiveMinutes(t *testing.T) {
	s, err := ParseSchedule("0 */5 * * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	from := time.Date(2026, 7, 31, 10, 2, 30, 0, time.UTC)
	next, err := s.Next(from)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 7, 31, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestInvalidFieldCountRejected(t *testing.T) {
	if _, err := ParseSchedule("0 0 9 * *"); err == nil {
		t.Fatal("expected error for wrong field count")
	}
}
