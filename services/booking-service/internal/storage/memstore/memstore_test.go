package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func reservation(id, hold string, start time.Time) *model.SlotReservation {
	return &model.SlotReservation{
		ID:            id,
		ProviderID:    "prov-1",
		ClientID:      "client-" + id,
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		ReservedUntil: base.Add(15 * time.Minute),
		PaymentHoldID: hold,
	}
}

func TestReservationUniqueTriple(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	require.NoError(t, s.CreateReservation(ctx, reservation("r1", "pending_1", base)))
	err := s.CreateReservation(ctx, reservation("r2", "pending_2", base))
	require.ErrorIs(t, err, storage.ErrDuplicate)

	err = s.CreateReservation(ctx, reservation("r3", "pending_1", base.Add(time.Hour)))
	require.ErrorIs(t, err, storage.ErrDuplicate, "hold ids are unique")

	require.NoError(t, s.CreateReservation(ctx, reservation("r4", "pending_4", base.Add(time.Hour))))
}

func TestConcurrentReservationsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			errs <- s.InTx(ctx, func(q storage.Queries) error {
				return q.CreateReservation(ctx, reservation(id, "pending_"+id, base))
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, storage.ErrDuplicate):
			dup++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, dup)
	require.Len(t, s.Reservations(), 1)
}

func TestFailedTxLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q storage.Queries) error {
		if err := q.CreateReservation(ctx, reservation("r1", "pending_1", base)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, s.Reservations())
}

func TestAppointmentExclusion(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	appt := func(id string, start time.Time, status model.AppointmentStatus) *model.Appointment {
		return &model.Appointment{ID: id, ProviderID: "prov-1", ClientID: "c", StartTime: start, EndTime: start.Add(time.Hour), Status: status, PaymentHoldID: "pi_" + id}
	}

	require.NoError(t, s.CreateAppointment(ctx, appt("a1", base, model.StatusPending)))
	require.ErrorIs(t, s.CreateAppointment(ctx, appt("a2", base.Add(30*time.Minute), model.StatusPending)), storage.ErrConflict)
	require.NoError(t, s.CreateAppointment(ctx, appt("a3", base.Add(time.Hour), model.StatusPending)), "touching intervals do not overlap")

	require.NoError(t, s.UpdateAppointmentStatus(ctx, "a1", model.StatusCancelled))
	require.NoError(t, s.CreateAppointment(ctx, appt("a4", base.Add(30*time.Minute), model.StatusPending)), "cancelled appointments free the slot")

	blocking, err := s.ListBlockingAppointments(ctx, "prov-1", base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, blocking, 2)
}

func TestDeleteExpiredAndActiveFilter(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	stale := reservation("r1", "pending_1", base)
	stale.ReservedUntil = base.Add(-2 * time.Hour)
	fresh := reservation("r2", "pending_2", base.Add(time.Hour))
	require.NoError(t, s.CreateReservation(ctx, stale))
	require.NoError(t, s.CreateReservation(ctx, fresh))

	active, err := s.ListActiveReservations(ctx, "prov-1", base, base.Add(4*time.Hour), base)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "r2", active[0].ID)

	deleted, err := s.DeleteExpiredReservations(ctx, base.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, "r1", deleted[0].ID)

	deleted, err = s.DeleteExpiredReservations(ctx, base.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, deleted)
}

func TestDeleteExpiredHonoursLimitOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	for i, id := range []string{"r1", "r2", "r3"} {
		r := reservation(id, "pending_"+id, base.Add(time.Duration(i)*time.Hour))
		r.ReservedUntil = base.Add(-time.Duration(3-i) * time.Hour)
		require.NoError(t, s.CreateReservation(ctx, r))
	}

	deleted, err := s.DeleteExpiredReservations(ctx, base, 2)
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	require.Equal(t, "r1", deleted[0].ID)
	require.Equal(t, "r2", deleted[1].ID)
	require.Len(t, s.Reservations(), 1)
}

func TestTakeEventsDrainsCommittedEvents(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	require.NoError(t, s.InTx(ctx, func(q storage.Queries) error {
		return q.AppendEvent(ctx, outbox.Event{AggregateType: outbox.AggregateReservation, AggregateID: "r1", EventType: outbox.EventReservationCreated})
	}))
	require.NoError(t, s.AppendEvent(ctx, outbox.Event{AggregateType: outbox.AggregateReservation, AggregateID: "r1", EventType: outbox.EventReservationReleased}))

	taken := s.TakeEvents()
	require.Len(t, taken, 2)
	require.Equal(t, outbox.EventReservationCreated, taken[0].EventType)
	require.Empty(t, s.Events())
	require.Empty(t, s.TakeEvents())
}

func TestOverrideUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	date, _ := model.ParseDate("2026-03-02")

	require.NoError(t, s.CreateOverride(ctx, &model.AvailabilityOverride{ID: "o1", ProviderID: "prov-1", Date: date, IsAllDay: true}))
	err := s.CreateOverride(ctx, &model.AvailabilityOverride{ID: "o2", ProviderID: "prov-1", Date: date, IsAllDay: true})
	require.ErrorIs(t, err, storage.ErrDuplicate)

	got, err := s.ListOverrides(ctx, "prov-1", date, date.AddDays(1))
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.ErrorIs(t, s.DeleteOverride(ctx, "prov-2", "o1"), storage.ErrNotFound)
	require.NoError(t, s.DeleteOverride(ctx, "prov-1", "o1"))
}
