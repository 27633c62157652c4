package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

// view implements storage.Queries either against the committed state
// (tx == nil, one lock per call) or against a transaction's working copy.
type view struct {
	store *Store
	tx    *state
}

func (v *view) acquire(ctx context.Context) (*state, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if v.tx != nil {
		return v.tx, func() {}, nil
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock, nil
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

func duplicate(op, what string) error {
	return fmt.Errorf("%s: %w: %s", op, storage.ErrDuplicate, what)
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (v *view) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return model.Provider{}, err
	}
	defer done()
	p, ok := st.providers[id]
	if !ok {
		return model.Provider{}, notFound("get provider")
	}
	return p, nil
}

func (v *view) UpsertProvider(ctx context.Context, p model.Provider) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	st.providers[p.ID] = p
	return nil
}

func (v *view) ListRecurring(ctx context.Context, providerID string) ([]model.RecurringAvailability, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	var out []model.RecurringAvailability
	for _, r := range st.recurring {
		if r.ProviderID == providerID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.RecurringAvailability) int {
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek - b.DayOfWeek
		}
		return int(a.StartTime - b.StartTime)
	})
	return out, nil
}

func (v *view) CreateRecurring(ctx context.Context, r *model.RecurringAvailability) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	for _, other := range st.recurring {
		if other.ProviderID == r.ProviderID && other.DayOfWeek == r.DayOfWeek &&
			other.StartTime == r.StartTime && other.EndTime == r.EndTime {
			return duplicate("create recurring", "provider/day/start/end")
		}
	}
	r.CreatedAt = v.store.now()
	st.recurring[r.ID] = *r
	return nil
}

func (v *view) DeleteRecurring(ctx context.Context, providerID, id string) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	if r, ok := st.recurring[id]; !ok || r.ProviderID != providerID {
		return notFound("delete recurring")
	}
	delete(st.recurring, id)
	return nil
}

func sameClock(a, b *model.ClockTime) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (v *view) ListOverrides(ctx context.Context, providerID string, from, to model.Date) ([]model.AvailabilityOverride, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	var out []model.AvailabilityOverride
	for _, o := range st.overrides {
		if o.ProviderID == providerID && !o.Date.Before(from) && o.Date.Before(to) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b model.AvailabilityOverride) int {
		return a.Date.In(time.UTC).Compare(b.Date.In(time.UTC))
	})
	return out, nil
}

func (v *view) CreateOverride(ctx context.Context, o *model.AvailabilityOverride) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	for _, other := range st.overrides {
		if other.ProviderID == o.ProviderID && other.Date == o.Date &&
			sameClock(other.StartTime, o.StartTime) && sameClock(other.EndTime, o.EndTime) {
			return duplicate("create override", "provider/date/start/end")
		}
	}
	o.CreatedAt = v.store.now()
	st.overrides[o.ID] = *o
	return nil
}

func (v *view) DeleteOverride(ctx context.Context, providerID, id string) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	if o, ok := st.overrides[id]; !ok || o.ProviderID != providerID {
		return notFound("delete override")
	}
	delete(st.overrides, id)
	return nil
}

func sortAppointments(out []model.Appointment, desc bool) {
	slices.SortFunc(out, func(a, b model.Appointment) int {
		if desc {
			return b.StartTime.Compare(a.StartTime)
		}
		return a.StartTime.Compare(b.StartTime)
	})
}

func (v *view) ListBlockingAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	var out []model.Appointment
	for _, a := range st.appointments {
		if a.ProviderID == providerID && a.Status.Blocks() && overlaps(a.StartTime, a.EndTime, from, to) {
			out = append(out, a)
		}
	}
	sortAppointments(out, false)
	return out, nil
}

func (v *view) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	for _, other := range st.appointments {
		if a.PaymentHoldID != "" && other.PaymentHoldID == a.PaymentHoldID {
			return duplicate("create appointment", "payment_hold_id")
		}
		if a.Status.Blocks() && other.Status.Blocks() && other.ProviderID == a.ProviderID &&
			overlaps(a.StartTime, a.EndTime, other.StartTime, other.EndTime) {
			return fmt.Errorf("create appointment: %w", storage.ErrConflict)
		}
	}
	a.CreatedAt = v.store.now()
	st.appointments[a.ID] = *a
	return nil
}

func (v *view) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer done()
	a, ok := st.appointments[id]
	if !ok {
		return model.Appointment{}, notFound("get appointment")
	}
	return a, nil
}

func (v *view) UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	a, ok := st.appointments[id]
	if !ok {
		return notFound("update appointment status")
	}
	a.Status = status
	st.appointments[id] = a
	return nil
}

func (v *view) listAppointmentsWhere(ctx context.Context, limit int, keep func(model.Appointment) bool) ([]model.Appointment, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	var out []model.Appointment
	for _, a := range st.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sortAppointments(out, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) ListAppointmentsByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	return v.listAppointmentsWhere(ctx, limit, func(a model.Appointment) bool { return a.ClientID == clientID })
}

func (v *view) ListAppointmentsByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error) {
	return v.listAppointmentsWhere(ctx, limit, func(a model.Appointment) bool { return a.ProviderID == providerID })
}

func (v *view) ListActiveReservations(ctx context.Context, providerID string, from, to, now time.Time) ([]model.SlotReservation, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	var out []model.SlotReservation
	for _, r := range st.reservations {
		if r.ProviderID == providerID && r.ActiveAt(now) && overlaps(r.StartTime, r.EndTime, from, to) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.SlotReservation) int { return a.StartTime.Compare(b.StartTime) })
	return out, nil
}

func (v *view) CreateReservation(ctx context.Context, r *model.SlotReservation) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	for _, other := range st.reservations {
		if other.ProviderID == r.ProviderID && other.StartTime.Equal(r.StartTime) && other.EndTime.Equal(r.EndTime) {
			return duplicate("create reservation", "provider/start/end")
		}
		if other.PaymentHoldID == r.PaymentHoldID {
			return duplicate("create reservation", "payment_hold_id")
		}
	}
	r.CreatedAt = v.store.now()
	st.reservations[r.ID] = *r
	return nil
}

func (v *view) SetReservationHold(ctx context.Context, id, holdID string) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	r, ok := st.reservations[id]
	if !ok {
		return notFound("set reservation hold")
	}
	for otherID, other := range st.reservations {
		if otherID != id && other.PaymentHoldID == holdID {
			return duplicate("set reservation hold", "payment_hold_id")
		}
	}
	r.PaymentHoldID = holdID
	st.reservations[id] = r
	return nil
}

func (v *view) GetReservationForUpdate(ctx context.Context, holdID, clientID string) (model.SlotReservation, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return model.SlotReservation{}, err
	}
	defer done()
	for _, r := range st.reservations {
		if r.PaymentHoldID == holdID && r.ClientID == clientID {
			return r, nil
		}
	}
	return model.SlotReservation{}, notFound("get reservation")
}

func (v *view) DeleteReservation(ctx context.Context, id string) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	if _, ok := st.reservations[id]; !ok {
		return notFound("delete reservation")
	}
	delete(st.reservations, id)
	return nil
}

func (v *view) DeleteExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]model.SlotReservation, error) {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	var out []model.SlotReservation
	for _, r := range st.reservations {
		if r.ReservedUntil.Before(cutoff) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.SlotReservation) int {
		if c := a.ReservedUntil.Compare(b.ReservedUntil); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for _, r := range out {
		delete(st.reservations, r.ID)
	}
	return out, nil
}

func (v *view) AppendEvent(ctx context.Context, evt outbox.Event) error {
	st, done, err := v.acquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	st.events = append(st.events, evt)
	return nil
}
