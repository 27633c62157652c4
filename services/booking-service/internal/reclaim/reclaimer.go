// Package reclaim deletes slot reservations that outlived their payment
// window by more than a grace period. It never refunds: a reclaimed
// reservation whose hold already succeeded is logged and published for
// reconciliation instead.
package reclaim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
)

const (
	DefaultGraceMinutes = 60
	DefaultBatchSize    = 100
)

var ErrInvalidGrace = errors.New("grace period must not be negative")

type Reclaimer struct {
	store     storage.Store
	payments  payments.Gateway
	logger    *slog.Logger
	clock     clock.Clock
	metrics   *metrics.BookingMetrics
	batchSize int
}

// NewReclaimer builds a Reclaimer. gateway may be nil, in which case hold
// statuses are not looked up.
func NewReclaimer(store storage.Store, gateway payments.Gateway, logger *slog.Logger, clk clock.Clock, m *metrics.BookingMetrics) *Reclaimer {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reclaimer{store: store, payments: gateway, logger: logger, clock: clk, metrics: m, batchSize: DefaultBatchSize}
}

// SetBatchSize bounds how many reservations one transaction deletes.
// Values below 1 restore DefaultBatchSize.
func (r *Reclaimer) SetBatchSize(n int) {
	if n < 1 {
		n = DefaultBatchSize
	}
	r.batchSize = n
}

type reclaimedEvent struct {
	ReservationID string    `json:"reservation_id"`
	ProviderID    string    `json:"provider_id"`
	ClientID      string    `json:"client_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	ReservedUntil time.Time `json:"reserved_until"`
	PaymentHoldID string    `json:"payment_hold_id"`
}

type holdPaidEvent struct {
	reclaimedEvent
	HoldStatus string `json:"hold_status"`
}

func newReclaimedEvent(res model.SlotReservation) reclaimedEvent {
	return reclaimedEvent{
		ReservationID: res.ID,
		ProviderID:    res.ProviderID,
		ClientID:      res.ClientID,
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
		ReservedUntil: res.ReservedUntil,
		PaymentHoldID: res.PaymentHoldID,
	}
}

// Reclaim deletes every reservation whose reserved_until is more than
// graceMinutes in the past and returns how many it removed. Running it
// again right away removes nothing.
//
// Rows are deleted in batches, one transaction each, so a failure keeps
// the batches already committed. Hold statuses are looked up only after
// the deletes commit; a reclaimed reservation whose hold succeeded gets a
// separate reclaimed_paid event.
func (r *Reclaimer) Reclaim(ctx context.Context, graceMinutes int) (deleted int, err error) {
	defer func() { r.metrics.ObserveReclaim(deleted, err) }()

	if graceMinutes < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidGrace, graceMinutes)
	}
	cutoff := r.clock.Now().Add(-time.Duration(graceMinutes) * time.Minute)

	var reclaimed []model.SlotReservation
	for {
		batch, err := r.reclaimBatch(ctx, cutoff)
		if err != nil {
			r.audit(ctx, reclaimed)
			return len(reclaimed), err
		}
		reclaimed = append(reclaimed, batch...)
		if len(batch) < r.batchSize {
			break
		}
	}
	r.audit(ctx, reclaimed)

	deleted = len(reclaimed)
	r.logger.Info("reclaim finished", "deleted", deleted, "grace_minutes", graceMinutes, "cutoff", cutoff)
	return deleted, nil
}

func (r *Reclaimer) reclaimBatch(ctx context.Context, cutoff time.Time) ([]model.SlotReservation, error) {
	var expired []model.SlotReservation
	err := r.store.InTx(ctx, func(q storage.Queries) error {
		var err error
		expired, err = q.DeleteExpiredReservations(ctx, cutoff, r.batchSize)
		if err != nil {
			return fmt.Errorf("delete expired reservations: %w", err)
		}
		for _, res := range expired {
			evt, err := outbox.NewEvent(outbox.AggregateReservation, res.ID, outbox.EventReservationReclaimed, newReclaimedEvent(res))
			if err != nil {
				return err
			}
			if err := q.AppendEvent(ctx, evt); err != nil {
				return fmt.Errorf("append reclaimed event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// audit runs after commit. Once ctx is done the remaining holds are
// reported as unknown instead of looked up.
func (r *Reclaimer) audit(ctx context.Context, reclaimed []model.SlotReservation) {
	for _, res := range reclaimed {
		status := r.holdStatus(ctx, res)
		if status != string(payments.StatusSucceeded) {
			r.logger.Info("reclaimed expired reservation",
				"reservation_id", res.ID,
				"hold_id", res.PaymentHoldID,
				"hold_status", status,
				"reserved_until", res.ReservedUntil,
			)
			continue
		}
		r.logger.Warn("reclaimed reservation had a successful payment hold",
			"reservation_id", res.ID,
			"hold_id", res.PaymentHoldID,
			"client_id", res.ClientID,
			"provider_id", res.ProviderID,
		)
		evt, err := outbox.NewEvent(outbox.AggregateReservation, res.ID, outbox.EventReclaimedHoldPaid, holdPaidEvent{
			reclaimedEvent: newReclaimedEvent(res),
			HoldStatus:     status,
		})
		if err == nil {
			err = r.store.AppendEvent(context.WithoutCancel(ctx), evt)
		}
		if err != nil {
			r.logger.Error("record reclaimed paid hold failed", "reservation_id", res.ID, "hold_id", res.PaymentHoldID, "err", err)
		}
	}
}

func (r *Reclaimer) holdStatus(ctx context.Context, res model.SlotReservation) string {
	if r.payments == nil || res.HasPlaceholderHold() || ctx.Err() != nil {
		return "unknown"
	}
	st, err := r.payments.GetHoldStatus(ctx, res.PaymentHoldID)
	if err != nil {
		r.logger.Warn("hold status lookup failed", "reservation_id", res.ID, "hold_id", res.PaymentHoldID, "err", err)
		return "unknown"
	}
	return string(st.Status)
}
