package scheduler

import (
	"testing"
	"time"
)

func TestParseRelativeTrigger(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	got, err := ParseTriggerTime("+30m", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := now.Add(30 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseAbsoluteTriggerIsUTC(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	got, err := ParseTriggerTime("2026-08-01 09:00", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseTriggerRejectsGarbage(t *testing.T) {
	if _, err := ParseTriggerTime("whenever", time.Now()); err == nil {
		t.Fatal("expected error for unparseable trigger_at")
	}
}
