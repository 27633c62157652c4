package model

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day, in minutes after midnight.
type ClockTime int

const minutesPerDay = 24 * 60

func NewClockTime(hour, minute int) (ClockTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	return ClockTime(hour*60 + minute), nil
}

// MustClockTime panics on invalid input; for literals.
func MustClockTime(hour, minute int) ClockTime {
	c, err := NewClockTime(hour, minute)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseClockTime accepts "HH:MM" and "HH:MM:SS" (seconds must be zero).
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Second() != 0 {
				return 0, fmt.Errorf("invalid time of day %q: seconds not supported", s)
			}
			return NewClockTime(t.Hour(), t.Minute())
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Duration since midnight.
func (c ClockTime) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	v, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Date is a calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the instant of wall-clock c on d in loc.
func (d Date) At(c ClockTime, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Weekday numbers days 0=Monday through 6=Sunday.
func (d Date) Weekday() int {
	return (int(d.In(time.UTC).Weekday()) + 6) % 7
}

func (d Date) Before(o Date) bool {
	return d.In(time.UTC).Before(o.In(time.UTC))
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

type RecurringAvailability struct {
	ID         string
	ProviderID string
	DayOfWeek  int
	StartTime  ClockTime
	EndTime    ClockTime
	CreatedAt  time.Time
}

func (r RecurringAvailability) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be between 0 (Monday) and 6 (Sunday)")
	}
	if r.StartTime >= r.EndTime {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}

// AvailabilityOverride always blocks time: the whole date when IsAllDay,
// otherwise [StartTime, EndTime).
type AvailabilityOverride struct {
	ID          string
	ProviderID  string
	Date        Date
	StartTime   *ClockTime
	EndTime     *ClockTime
	IsAllDay    bool
	Description string
	CreatedAt   time.Time
}

func (o AvailabilityOverride) Validate() error {
	if o.IsAllDay {
		if o.StartTime != nil || o.EndTime != nil {
			return fmt.Errorf("start_time and end_time must be empty for an all-day override")
		}
		return nil
	}
	if o.StartTime == nil || o.EndTime == nil {
		return fmt.Errorf("start_time and end_time are required unless the override is all-day")
	}
	if *o.StartTime >= *o.EndTime {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}

// Window returns the blocked interval in loc; ok is false for all-day overrides.
func (o AvailabilityOverride) Window(loc *time.Location) (start, end time.Time, ok bool) {
	if o.IsAllDay || o.StartTime == nil || o.EndTime == nil {
		return time.Time{}, time.Time{}, false
	}
	return o.Date.At(*o.StartTime, loc), o.Date.At(*o.EndTime, loc), true
}
