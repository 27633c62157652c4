package booking

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/payments"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrPaymentNotComplete  = errors.New("payment not complete")
	// ErrAuthorization means the payment hold does not belong to the
	// reservation it was presented for.
	ErrAuthorization       = errors.New("payment does not match reservation")
	ErrPaymentProvider     = errors.New("payment provider error")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
)

// PaymentNotCompleteError matches ErrPaymentNotComplete and carries the
// hold status the provider reported.
type PaymentNotCompleteError struct {
	Status payments.Status
	Raw    string
}

func (e *PaymentNotCompleteError) Error() string {
	return fmt.Sprintf("payment not complete: status %s", e.Raw)
}

func (e *PaymentNotCompleteError) Is(target error) bool {
	return target == ErrPaymentNotComplete
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrReservationNotFound):
		return "not_found"
	case errors.Is(err, ErrReservationExpired):
		return "expired"
	case errors.Is(err, ErrPaymentNotComplete):
		return "payment_not_complete"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrPaymentProvider):
		return "payment_provider"
	default:
		return "error"
	}
}
