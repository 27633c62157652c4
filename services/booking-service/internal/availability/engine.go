package availability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

const (
	DefaultHorizonDays = 7
	MaxHorizonDays     = 60
	MinSlotDuration    = 5 * time.Minute
	MaxSlotDuration    = 24 * time.Hour
)

var (
	ErrInvalidInput     = errors.New("invalid availability query")
	ErrProviderNotFound = errors.New("provider not found")
)

// Source is the read side of the calendar rules store and the booking ledger.
// storage.Queries satisfies it, inside or outside a transaction.
type Source interface {
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	ListRecurring(ctx context.Context, providerID string) ([]model.RecurringAvailability, error)
	ListOverrides(ctx context.Context, providerID string, from, to model.Date) ([]model.AvailabilityOverride, error)
	ListBlockingAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error)
	ListActiveReservations(ctx context.Context, providerID string, from, to, now time.Time) ([]model.SlotReservation, error)
}

type Engine struct {
	src   Source
	clock clock.Clock
}

func NewEngine(src Source, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{src: src, clock: clk}
}

// ComputeSlots lists bookable slots for provider over horizonDays calendar
// days starting today in the provider's zone. Zero values select the
// defaults: DefaultHorizonDays and the provider's default slot length.
func (e *Engine) ComputeSlots(ctx context.Context, providerID string, horizonDays int, slotDuration time.Duration) ([]Interval, error) {
	if horizonDays == 0 {
		horizonDays = DefaultHorizonDays
	}
	if horizonDays < 1 || horizonDays > MaxHorizonDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidInput, MaxHorizonDays)
	}

	provider, loc, err := loadProvider(ctx, e.src, providerID)
	if err != nil {
		return nil, err
	}
	if slotDuration == 0 {
		slotDuration = provider.DefaultSlot()
	}
	if slotDuration < MinSlotDuration || slotDuration > MaxSlotDuration {
		return nil, fmt.Errorf("%w: slot duration must be between %s and %s", ErrInvalidInput, MinSlotDuration, MaxSlotDuration)
	}

	now := e.clock.Now()
	today := model.DateOf(now.In(loc))
	last := today.AddDays(horizonDays)
	window := Interval{Start: today.In(loc), End: last.In(loc)}

	rules, err := e.src.ListRecurring(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list recurring availability: %w", err)
	}
	overrides, err := e.src.ListOverrides(ctx, providerID, today, last)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	busy, err := ledgerBusy(ctx, e.src, providerID, window, now, "")
	if err != nil {
		return nil, err
	}

	allDay := map[model.Date]bool{}
	for _, o := range overrides {
		if o.IsAllDay {
			allDay[o.Date] = true
			continue
		}
		if start, end, ok := o.Window(loc); ok {
			busy = append(busy, Interval{Start: start, End: end})
		}
	}

	byWeekday := map[int][]model.RecurringAvailability{}
	for _, r := range rules {
		byWeekday[r.DayOfWeek] = append(byWeekday[r.DayOfWeek], r)
	}

	seen := map[Interval]bool{}
	var out []Interval
	for d := today; d.Before(last); d = d.AddDays(1) {
		if allDay[d] {
			continue
		}
		for _, r := range byWeekday[d.Weekday()] {
			start, end := d.At(r.StartTime, loc), d.At(r.EndTime, loc)
			for _, slot := range AvailableSlots(start, end, slotDuration, slotDuration, busy, now) {
				key := Interval{Start: slot.Start.UTC(), End: slot.End.UTC()}
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	slices.SortFunc(out, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})
	return out, nil
}

// Occupied reports whether iv collides with an override, a pending or
// confirmed appointment, or an active reservation other than
// excludeReservationID. It does not require iv to fall inside a recurring
// window.
func Occupied(ctx context.Context, src Source, provider model.Provider, iv Interval, now time.Time, excludeReservationID string) (bool, error) {
	loc, err := provider.Location()
	if err != nil {
		return false, err
	}

	first := model.DateOf(iv.Start.In(loc))
	last := model.DateOf(iv.End.Add(-time.Nanosecond).In(loc))
	overrides, err := src.ListOverrides(ctx, provider.ID, first, last.AddDays(1))
	if err != nil {
		return false, fmt.Errorf("list overrides: %w", err)
	}
	for _, o := range overrides {
		if o.IsAllDay {
			return true, nil
		}
		if start, end, ok := o.Window(loc); ok && iv.Overlaps(Interval{Start: start, End: end}) {
			return true, nil
		}
	}

	busy, err := ledgerBusy(ctx, src, provider.ID, iv, now, excludeReservationID)
	if err != nil {
		return false, err
	}
	return overlapsAny(iv, busy), nil
}

func ledgerBusy(ctx context.Context, src Source, providerID string, window Interval, now time.Time, excludeReservationID string) ([]Interval, error) {
	appts, err := src.ListBlockingAppointments(ctx, providerID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	reservations, err := src.ListActiveReservations(ctx, providerID, window.Start, window.End, now)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	busy := make([]Interval, 0, len(appts)+len(reservations))
	for _, a := range appts {
		busy = append(busy, Interval{Start: a.StartTime, End: a.EndTime})
	}
	for _, r := range reservations {
		if r.ID == excludeReservationID || !r.ActiveAt(now) {
			continue
		}
		busy = append(busy, Interval{Start: r.StartTime, End: r.EndTime})
	}
	return busy, nil
}

func loadProvider(ctx context.Context, src Source, providerID string) (model.Provider, *time.Location, error) {
	if providerID == "" {
		return model.Provider{}, nil, fmt.Errorf("%w: provider_id is required", ErrInvalidInput)
	}
	provider, err := src.GetProvider(ctx, providerID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Provider{}, nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	if err != nil {
		return model.Provider{}, nil, fmt.Errorf("get provider: %w", err)
	}
	loc, err := provider.Location()
	if err != nil {
		return model.Provider{}, nil, err
	}
	return provider, loc, nil
}
