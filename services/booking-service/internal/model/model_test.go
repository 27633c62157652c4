package model

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AppointmentStatus
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v", tc.from, tc.to, tc.ok)
		}
	}
}

func TestOverrideValidate(t *testing.T) {
	nine, ten := MustClockTime(9, 0), MustClockTime(10, 0)
	date, _ := ParseDate("2026-03-02")

	valid := []AvailabilityOverride{
		{Date: date, IsAllDay: true},
		{Date: date, StartTime: &nine, EndTime: &ten},
	}
	for i, o := range valid {
		if err := o.Validate(); err != nil {
			t.Fatalf("case %d: unexpected error %v", i, err)
		}
	}

	invalid := []AvailabilityOverride{
		{Date: date, IsAllDay: true, StartTime: &nine},
		{Date: date, StartTime: &nine},
		{Date: date, StartTime: &ten, EndTime: &nine},
		{Date: date, StartTime: &nine, EndTime: &nine},
	}
	for i, o := range invalid {
		if err := o.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestDateWeekdayStartsMonday(t *testing.T) {
	monday, _ := ParseDate("2026-03-02")
	if monday.Weekday() != 0 {
		t.Fatalf("expected Monday=0, got %d", monday.Weekday())
	}
	if sunday := monday.AddDays(6); sunday.Weekday() != 6 || sunday.String() != "2026-03-08" {
		t.Fatalf("unexpected sunday %s weekday=%d", sunday, sunday.Weekday())
	}
	if got := monday.AddDays(30).String(); got != "2026-04-01" {
		t.Fatalf("expected month rollover, got %s", got)
	}
}

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("09:30")
	if err != nil || c.Hour() != 9 || c.Minute() != 30 || c.String() != "09:30" {
		t.Fatalf("unexpected parse result %v %v", c, err)
	}
	if c2, err := ParseClockTime("17:00:00"); err != nil || c2 != MustClockTime(17, 0) {
		t.Fatalf("expected HH:MM:SS form to parse, got %v %v", c2, err)
	}
	for _, bad := range []string{"24:00", "9am", "10:00:30"} {
		if _, err := ParseClockTime(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestOverrideWindowInZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	nine, ten := MustClockTime(9, 0), MustClockTime(10, 0)
	date, _ := ParseDate("2026-07-01")
	o := AvailabilityOverride{Date: date, StartTime: &nine, EndTime: &ten}
	start, end, ok := o.Window(loc)
	if !ok {
		t.Fatalf("expected partial window")
	}
	if start.UTC().Hour() != 13 || end.Sub(start) != time.Hour {
		t.Fatalf("unexpected window %s - %s", start.UTC(), end.UTC())
	}
}

func TestReservationActive(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	r := SlotReservation{ReservedUntil: now.Add(15 * time.Minute), PaymentHoldID: PlaceholderHoldPrefix + "abc"}
	if !r.ActiveAt(now) || r.ActiveAt(now.Add(15*time.Minute)) {
		t.Fatalf("reservation must be active strictly before reserved_until")
	}
	if !r.HasPlaceholderHold() {
		t.Fatalf("expected placeholder hold")
	}
}
