package availability

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses the half-open rule, so intervals that only touch do not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// AvailableSlots partitions [windowStart, windowEnd) into consecutive slots of
// duration, advancing by step. A partial trailing slot is dropped, as is
// every slot starting at or before now or overlapping busy.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []Interval {
	if duration <= 0 || step <= 0 || !windowEnd.After(windowStart) {
		return nil
	}

	var slots []Interval
	for start := windowStart; !start.Add(duration).After(windowEnd); start = start.Add(step) {
		slot := Interval{Start: start, End: start.Add(duration)}
		if !slot.Start.After(now) {
			continue
		}
		if overlapsAny(slot, busy) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
