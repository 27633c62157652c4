// Package memstore is an in-process storage.Store used by tests and local
// runs without PostgreSQL. Transactions are serialised by a single writer
// lock and applied to a copy of the state, so a failed transaction leaves
// nothing behind.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

type state struct {
	providers    map[string]model.Provider
	recurring    map[string]model.RecurringAvailability
	overrides    map[string]model.AvailabilityOverride
	appointments map[string]model.Appointment
	reservations map[string]model.SlotReservation
	events       []outbox.Event
}

func newState() *state {
	return &state{
		providers:    map[string]model.Provider{},
		recurring:    map[string]model.RecurringAvailability{},
		overrides:    map[string]model.AvailabilityOverride{},
		appointments: map[string]model.Appointment{},
		reservations: map[string]model.SlotReservation{},
	}
}

func (s *state) clone() *state {
	return &state{
		providers:    maps.Clone(s.providers),
		recurring:    maps.Clone(s.recurring),
		overrides:    maps.Clone(s.overrides),
		appointments: maps.Clone(s.appointments),
		reservations: maps.Clone(s.reservations),
		events:       slices.Clone(s.events),
	}
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
	*view
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store. now stamps created_at columns; nil means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{state: newState(), now: now}
	s.view = &view{store: s}
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(q storage.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&view{store: s, tx: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Events returns a copy of every outbox event committed so far.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.events)
}

// TakeEvents returns the committed outbox events and forgets them. Nothing
// publishes from memory, so a long-running process must drain them.
func (s *Store) TakeEvents() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state.events
	s.state.events = nil
	return out
}

// Reservations returns every stored reservation ordered by start time.
func (s *Store) Reservations() []model.SlotReservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.state.reservations))
	slices.SortFunc(out, func(a, b model.SlotReservation) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

// Appointments returns every stored appointment ordered by start time.
func (s *Store) Appointments() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.state.appointments))
	slices.SortFunc(out, func(a, b model.Appointment) int { return a.StartTime.Compare(b.StartTime) })
	return out
}
