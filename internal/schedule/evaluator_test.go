package schedule

import (
	"testing"
	"time"
)

func TestNextAfterMinuteGranularity(t *testing.T) {
	e := NewEvaluator()
	ref := time.Date(2025, 1, 24, 10, 0, 0, 0, time.UTC)
	next, ok, err := e.Next("*/5 * * * *", "UTC", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a next fire time")
	}
	want := time.Date(2025, 1, 24, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next() = %v, want %v", next, want)
	}
}

func TestNextSecondGranularity(t *testing.T) {
	e := NewEvaluator()
	ref := time.Date(2025, 1, 24, 10, 0, 0, 0, time.UTC)
	next, ok, err := e.Next("*/5 * * * * *", "UTC", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a next fire time")
	}
	want := time.Date(2025, 1, 24, 10, 0, 5, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next() = %v, want %v", next, want)
	}
}

func TestNextAtMinuteBoundaryFiresExactlyOnce(t *testing.T) {
	e := NewEvaluator()
	ref := time.Date(2025, 1, 24, 9, 59, 59, 0, time.UTC)
	next, _, err := e.Next("0 * * * *", "UTC", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 1, 24, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next() = %v, want %v", next, want)
	}
	// Re-evaluating strictly after that instant must not return the same one.
	next2, _, err := e.Next("0 * * * *", "UTC", next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next2.Equal(next) {
		t.Fatalf("Next() returned the same instant when called again with it as ref")
	}
}

func TestNextRespectsTimezone(t *testing.T) {
	e := NewEvaluator()
	ref := time.Date(2025, 1, 24, 0, 0, 0, 0, time.UTC)
	// 09:00 in America/New_York (EST, UTC-5) on 2025-01-24 is 14:00 UTC.
	next, ok, err := e.Next("0 9 * * *", "America/New_York", ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a next fire time")
	}
	want := time.Date(2025, 1, 24, 14, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next() = %v, want %v", next, want)
	}
}

func TestIsValidCron(t *testing.T) {
	e := NewEvaluator()
	if !e.IsValidCron("*/5 * * * *") {
		t.Fatalf("expected valid 5-field expression")
	}
	if !e.IsValidCron("*/5 * * * * *") {
		t.Fatalf("expected valid 6-field expression")
	}
	if e.IsValidCron("not a cron expression") {
		t.Fatalf("expected invalid expression to be rejected")
	}
}

func TestIsValidTimezone(t *testing.T) {
	e := NewEvaluator()
	if !e.IsValidTimezone("UTC") {
		t.Fatalf("expected UTC to be valid")
	}
	if !e.IsValidTimezone("Europe/Berlin") {
		t.Fatalf("expected Europe/Berlin to be valid")
	}
	if e.IsValidTimezone("Not/AZone") {
		t.Fatalf("expected bogus timezone to be invalid")
	}
}
