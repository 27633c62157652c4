package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is a unique constraint violation, e.g. a second
	// reservation for the same (provider, start, end).
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict is an overlapping appointment rejected by the ledger.
	ErrConflict = errors.New("conflicting appointment")
)

// Queries is the booking ledger and calendar rules store. Implementations
// run each call against either the pool or the enclosing transaction.
type Queries interface {
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	UpsertProvider(ctx context.Context, p model.Provider) error

	ListRecurring(ctx context.Context, providerID string) ([]model.RecurringAvailability, error)
	CreateRecurring(ctx context.Context, r *model.RecurringAvailability) error
	DeleteRecurring(ctx context.Context, providerID, id string) error

	// ListOverrides returns overrides with from <= date < to.
	ListOverrides(ctx context.Context, providerID string, from, to model.Date) ([]model.AvailabilityOverride, error)
	CreateOverride(ctx context.Context, o *model.AvailabilityOverride) error
	DeleteOverride(ctx context.Context, providerID, id string) error

	// ListBlockingAppointments returns pending and confirmed appointments
	// overlapping [from, to).
	ListBlockingAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error)
	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) error
	ListAppointmentsByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error)
	ListAppointmentsByProvider(ctx context.Context, providerID string, limit int) ([]model.Appointment, error)

	// ListActiveReservations returns reservations overlapping [from, to)
	// whose reserved_until is after now.
	ListActiveReservations(ctx context.Context, providerID string, from, to, now time.Time) ([]model.SlotReservation, error)
	CreateReservation(ctx context.Context, r *model.SlotReservation) error
	SetReservationHold(ctx context.Context, id, holdID string) error
	GetReservationForUpdate(ctx context.Context, holdID, clientID string) (model.SlotReservation, error)
	DeleteReservation(ctx context.Context, id string) error
	// DeleteExpiredReservations removes up to limit reservations with
	// reserved_until < cutoff, oldest first, and returns what it removed.
	// Rows locked by another transaction are skipped.
	DeleteExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]model.SlotReservation, error)

	AppendEvent(ctx context.Context, evt outbox.Event) error
}

// Store adds transactions on top of Queries. fn's Queries must not be used
// after fn returns. A nil return commits.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
}
