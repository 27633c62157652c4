// Package booking runs the reserve, pay and confirm protocol. A slot is first
// claimed by a short-lived reservation, a payment hold is placed against it,
// and confirmation promotes the reservation to an appointment once the hold
// has succeeded. Every failure after the reservation exists either promotes
// or deletes it; only unexpected errors leave it for the reclaimer.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

const DefaultReservationWindow = 15 * time.Minute

var tracer = otel.Tracer("counselbook/booking")

type Config struct {
	// ReservationWindow is how long a reservation stays active while the
	// client pays.
	ReservationWindow time.Duration
	Clock             clock.Clock
	Metrics           *metrics.BookingMetrics
}

type Coordinator struct {
	store    storage.Store
	payments payments.Gateway
	logger   *slog.Logger
	clock    clock.Clock
	metrics  *metrics.BookingMetrics
	window   time.Duration
}

func NewCoordinator(store storage.Store, gateway payments.Gateway, logger *slog.Logger, cfg Config) *Coordinator {
	if cfg.ReservationWindow <= 0 {
		cfg.ReservationWindow = DefaultReservationWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		payments: gateway,
		logger:   logger,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		window:   cfg.ReservationWindow,
	}
}

type Initiated struct {
	ReservationID string
	HoldID        string
	ClientSecret  string
	ReservedUntil time.Time
}

type reservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	ProviderID    string    `json:"provider_id"`
	ClientID      string    `json:"client_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ReservedUntil time.Time `json:"reserved_until,omitzero"`
	PaymentHoldID string    `json:"payment_hold_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

type appointmentEvent struct {
	AppointmentID string    `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	ClientID      string    `json:"client_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	PreviousState string    `json:"previous_status,omitempty"`
	PaymentHoldID string    `json:"payment_hold_id,omitempty"`
}

// InitiateBooking reserves [start, end) with providerID for clientID and
// places a payment hold for the provider's fee. The reservation is committed
// before the payment provider is called.
func (c *Coordinator) InitiateBooking(ctx context.Context, clientID, providerID string, start, end time.Time) (res Initiated, err error) {
	ctx, span := tracer.Start(ctx, "booking.initiate", trace.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("client_id", clientID),
	))
	defer func() {
		c.finish(span, "initiate", err)
	}()

	now := c.clock.Now()
	start, end = normalize(start), normalize(end)
	switch {
	case clientID == "" || providerID == "":
		return Initiated{}, fmt.Errorf("%w: client and provider are required", ErrInvalidInput)
	case !end.After(start):
		return Initiated{}, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	case !start.After(now):
		return Initiated{}, fmt.Errorf("%w: start must be in the future", ErrInvalidInput)
	}

	reservation := model.SlotReservation{
		ID:            uuid.NewString(),
		ProviderID:    providerID,
		ClientID:      clientID,
		StartTime:     start,
		EndTime:       end,
		ReservedUntil: now.Add(c.window),
		PaymentHoldID: model.PlaceholderHoldPrefix + uuid.NewString(),
	}
	var provider model.Provider
	err = c.store.InTx(ctx, func(q storage.Queries) error {
		p, err := q.GetProvider(ctx, providerID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: unknown provider %s", ErrInvalidInput, providerID)
		}
		if err != nil {
			return err
		}
		if p.FeeMinorUnits <= 0 {
			return fmt.Errorf("%w: provider %s has no consultation fee", ErrInvalidInput, providerID)
		}
		provider = p

		busy, err := availability.Occupied(ctx, q, p, availability.Interval{Start: start, End: end}, now, "")
		if err != nil {
			return err
		}
		if busy {
			return ErrSlotUnavailable
		}
		if err := q.CreateReservation(ctx, &reservation); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return ErrSlotUnavailable
			}
			return err
		}
		return appendEvent(ctx, q, outbox.AggregateReservation, reservation.ID, outbox.EventReservationCreated, reservationEvent{
			ReservationID: reservation.ID,
			ProviderID:    providerID,
			ClientID:      clientID,
			StartTime:     start,
			EndTime:       end,
			ReservedUntil: reservation.ReservedUntil,
		})
	})
	if err != nil {
		return Initiated{}, fmt.Errorf("reserve slot: %w", err)
	}

	hold, err := c.payments.CreateHold(ctx, payments.HoldRequest{
		AmountMinorUnits: provider.FeeMinorUnits,
		Currency:         provider.Currency,
		Metadata:         holdMetadata(reservation),
		IdempotencyKey:   "hold-" + reservation.ID,
	})
	if err != nil {
		c.logger.Error("payment hold creation failed", "reservation_id", reservation.ID, "err", err)
		c.discard(ctx, reservation, "payment_initiation_failed")
		return Initiated{}, fmt.Errorf("%w: initiate payment: %v", ErrPaymentProvider, err)
	}

	if err := c.store.SetReservationHold(ctx, reservation.ID, hold.ID); err != nil {
		c.logger.Error("attach payment hold failed", "reservation_id", reservation.ID, "hold_id", hold.ID, "err", err)
		c.refund(ctx, hold.ID)
		c.discard(ctx, reservation, "payment_initiation_failed")
		return Initiated{}, fmt.Errorf("attach payment hold: %w", err)
	}

	c.logger.Info("slot reserved",
		"reservation_id", reservation.ID,
		"provider_id", providerID,
		"client_id", clientID,
		"hold_id", hold.ID,
		"reserved_until", reservation.ReservedUntil,
	)
	return Initiated{
		ReservationID: reservation.ID,
		HoldID:        hold.ID,
		ClientSecret:  hold.ClientSecret,
		ReservedUntil: reservation.ReservedUntil,
	}, nil
}

// ConfirmBooking promotes the client's reservation for holdID to a pending
// appointment once the hold has succeeded.
func (c *Coordinator) ConfirmBooking(ctx context.Context, clientID, holdID string) (appt model.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.confirm", trace.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("hold_id", holdID),
	))
	defer func() {
		c.finish(span, "confirm", err)
	}()

	if clientID == "" || holdID == "" {
		return model.Appointment{}, fmt.Errorf("%w: client and hold id are required", ErrInvalidInput)
	}

	// rejected is set when the attempt is refused; the transaction still
	// commits so the reservation delete sticks.
	var (
		reservation model.SlotReservation
		rejected    error
		mustRefund  bool
	)
	err = c.store.InTx(ctx, func(q storage.Queries) error {
		rejected, mustRefund, appt = nil, false, model.Appointment{}

		r, err := q.GetReservationForUpdate(ctx, holdID, clientID)
		if errors.Is(err, storage.ErrNotFound) {
			rejected = ErrReservationNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock reservation: %w", err)
		}
		if r.HasPlaceholderHold() {
			// Initiation is still in flight for this reservation.
			rejected = ErrReservationNotFound
			return nil
		}
		reservation = r
		now := c.clock.Now()

		if !r.ActiveAt(now) {
			st, err := c.payments.GetHoldStatus(ctx, holdID)
			if err != nil {
				c.logger.Warn("hold status unavailable for expired reservation", "reservation_id", r.ID, "hold_id", holdID, "err", err)
			}
			mustRefund = err == nil && st.Status == payments.StatusSucceeded
			rejected = ErrReservationExpired
			return release(ctx, q, r, "expired")
		}

		st, err := c.payments.GetHoldStatus(ctx, holdID)
		if err != nil {
			return fmt.Errorf("%w: hold status: %v", ErrPaymentProvider, err)
		}
		if st.Status != payments.StatusSucceeded {
			rejected = &PaymentNotCompleteError{Status: st.Status, Raw: st.Raw}
			return release(ctx, q, r, "payment_not_complete")
		}
		if !metadataMatches(st.Metadata, r) {
			c.logger.Warn("payment hold metadata mismatch", "reservation_id", r.ID, "hold_id", holdID, "client_id", clientID)
			mustRefund = true
			rejected = ErrAuthorization
			return release(ctx, q, r, "payment_mismatch")
		}

		provider, err := q.GetProvider(ctx, r.ProviderID)
		if err != nil {
			return fmt.Errorf("get provider: %w", err)
		}
		busy, err := availability.Occupied(ctx, q, provider, availability.Interval{Start: r.StartTime, End: r.EndTime}, now, r.ID)
		if err != nil {
			return err
		}
		if busy {
			mustRefund = true
			rejected = ErrSlotUnavailable
			return release(ctx, q, r, "slot_unavailable")
		}

		a := model.Appointment{
			ID:            uuid.NewString(),
			ProviderID:    r.ProviderID,
			ClientID:      r.ClientID,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			Status:        model.StatusPending,
			PaymentHoldID: holdID,
			PaymentStatus: string(payments.StatusSucceeded),
		}
		if err := q.CreateAppointment(ctx, &a); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		if err := q.DeleteReservation(ctx, r.ID); err != nil {
			return fmt.Errorf("delete reservation: %w", err)
		}
		if err := appendEvent(ctx, q, outbox.AggregateAppointment, a.ID, outbox.EventAppointmentCreated, appointmentEvent{
			AppointmentID: a.ID,
			ProviderID:    a.ProviderID,
			ClientID:      a.ClientID,
			StartTime:     a.StartTime,
			EndTime:       a.EndTime,
			Status:        string(a.Status),
			PaymentHoldID: holdID,
		}); err != nil {
			return err
		}
		appt = a
		return nil
	})

	switch {
	case errors.Is(err, storage.ErrConflict):
		// The exclusion constraint is the last availability re-check: treat
		// it like the Occupied branch above, not as a failed insert.
		c.logger.Warn("appointment conflicts with existing booking", "reservation_id", reservation.ID, "hold_id", holdID)
		c.refund(ctx, holdID)
		c.discard(ctx, reservation, "slot_unavailable")
		return model.Appointment{}, ErrSlotUnavailable
	case err != nil:
		c.logger.Error("confirm booking failed", "hold_id", holdID, "client_id", clientID, "err", err)
		return model.Appointment{}, fmt.Errorf("confirm booking: %w", err)
	}

	if mustRefund {
		c.refund(ctx, holdID)
	}
	if rejected != nil {
		c.logger.Info("booking confirmation rejected", "hold_id", holdID, "client_id", clientID, "reason", rejected.Error())
		return model.Appointment{}, rejected
	}

	c.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"client_id", appt.ClientID,
		"hold_id", holdID,
	)
	c.capture(ctx, appt)
	return appt, nil
}

// CancelReservation drops the client's reservation for holdID and releases
// the hold unless the provider already reports it failed.
func (c *Coordinator) CancelReservation(ctx context.Context, clientID, holdID string) (err error) {
	ctx, span := tracer.Start(ctx, "booking.cancel", trace.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("hold_id", holdID),
	))
	defer func() {
		c.finish(span, "cancel", err)
	}()

	if clientID == "" || holdID == "" {
		return fmt.Errorf("%w: client and hold id are required", ErrInvalidInput)
	}

	var reservation model.SlotReservation
	err = c.store.InTx(ctx, func(q storage.Queries) error {
		r, err := q.GetReservationForUpdate(ctx, holdID, clientID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return fmt.Errorf("lock reservation: %w", err)
		}
		reservation = r
		return release(ctx, q, r, "cancelled")
	})
	if err != nil {
		return err
	}

	st, err := c.payments.GetHoldStatus(ctx, holdID)
	if err != nil {
		c.logger.Warn("hold status unavailable after cancel", "reservation_id", reservation.ID, "hold_id", holdID, "err", err)
		return nil
	}
	if st.Status != payments.StatusFailed {
		c.refund(ctx, holdID)
	}
	c.logger.Info("reservation cancelled", "reservation_id", reservation.ID, "hold_id", holdID, "client_id", clientID)
	return nil
}

// TransitionAppointment moves one of providerID's appointments to status.
func (c *Coordinator) TransitionAppointment(ctx context.Context, providerID, appointmentID string, to model.AppointmentStatus) (model.Appointment, error) {
	var appt model.Appointment
	err := c.store.InTx(ctx, func(q storage.Queries) error {
		a, err := q.GetAppointmentForUpdate(ctx, appointmentID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && a.ProviderID != providerID) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("lock appointment: %w", err)
		}
		if !a.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, to)
		}
		if err := q.UpdateAppointmentStatus(ctx, a.ID, to); err != nil {
			return fmt.Errorf("update appointment status: %w", err)
		}
		previous := a.Status
		a.Status = to
		appt = a
		return appendEvent(ctx, q, outbox.AggregateAppointment, a.ID, outbox.EventAppointmentStatus, appointmentEvent{
			AppointmentID: a.ID,
			ProviderID:    a.ProviderID,
			ClientID:      a.ClientID,
			StartTime:     a.StartTime,
			EndTime:       a.EndTime,
			Status:        string(to),
			PreviousState: string(previous),
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}
	c.logger.Info("appointment status changed", "appointment_id", appt.ID, "provider_id", providerID, "status", to)
	return appt, nil
}

func (c *Coordinator) finish(span trace.Span, operation string, err error) {
	c.metrics.ObserveBooking(operation, outcome(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// capture collects the hold behind a committed appointment. Manual-capture
// holds lapse if never captured, so a failure is logged for follow-up but
// does not undo the booking.
func (c *Coordinator) capture(ctx context.Context, appt model.Appointment) {
	err := c.payments.CaptureHold(context.WithoutCancel(ctx), appt.PaymentHoldID)
	c.metrics.ObserveBooking("capture", outcome(err))
	if err != nil {
		c.logger.Error("capture payment hold failed",
			"appointment_id", appt.ID,
			"hold_id", appt.PaymentHoldID,
			"err", err,
		)
		return
	}
	c.logger.Info("payment hold captured", "appointment_id", appt.ID, "hold_id", appt.PaymentHoldID)
}

// refund is best effort; failures are logged for manual follow-up.
func (c *Coordinator) refund(ctx context.Context, holdID string) {
	if err := c.payments.RefundHold(context.WithoutCancel(ctx), holdID); err != nil {
		c.logger.Error("refund payment hold failed", "hold_id", holdID, "err", err)
		return
	}
	c.logger.Info("payment hold refunded", "hold_id", holdID)
}

// discard deletes a reservation outside any transaction after the protocol
// gave up on it.
func (c *Coordinator) discard(ctx context.Context, r model.SlotReservation, reason string) {
	if r.ID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := c.store.InTx(ctx, func(q storage.Queries) error {
		return release(ctx, q, r, reason)
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.logger.Error("delete reservation failed", "reservation_id", r.ID, "err", err)
	}
}

func release(ctx context.Context, q storage.Queries, r model.SlotReservation, reason string) error {
	if err := q.DeleteReservation(ctx, r.ID); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return appendEvent(ctx, q, outbox.AggregateReservation, r.ID, outbox.EventReservationReleased, reservationEvent{
		ReservationID: r.ID,
		ProviderID:    r.ProviderID,
		ClientID:      r.ClientID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		PaymentHoldID: r.PaymentHoldID,
		Reason:        reason,
	})
}

func appendEvent(ctx context.Context, q storage.Queries, aggregateType, aggregateID, eventType string, payload any) error {
	evt, err := outbox.NewEvent(aggregateType, aggregateID, eventType, payload)
	if err != nil {
		return err
	}
	if err := q.AppendEvent(ctx, evt); err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	return nil
}

func holdMetadata(r model.SlotReservation) map[string]string {
	return map[string]string{
		payments.MetaReservationID: r.ID,
		payments.MetaClientID:      r.ClientID,
		payments.MetaProviderID:    r.ProviderID,
		payments.MetaStart:         r.StartTime.Format(time.RFC3339Nano),
		payments.MetaEnd:           r.EndTime.Format(time.RFC3339Nano),
	}
}

func metadataMatches(md map[string]string, r model.SlotReservation) bool {
	if md[payments.MetaReservationID] != r.ID ||
		md[payments.MetaClientID] != r.ClientID ||
		md[payments.MetaProviderID] != r.ProviderID {
		return false
	}
	start, err := time.Parse(time.RFC3339Nano, md[payments.MetaStart])
	if err != nil || !start.Equal(r.StartTime) {
		return false
	}
	end, err := time.Parse(time.RFC3339Nano, md[payments.MetaEnd])
	return err == nil && end.Equal(r.EndTime)
}

// normalize drops precision PostgreSQL would not keep.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
