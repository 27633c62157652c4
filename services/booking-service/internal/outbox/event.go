package outbox

import (
	"encoding/json"
	"fmt"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateReservation = "slot_reservation"
	AggregateAppointment = "appointment"

	EventReservationCreated   = "booking.reservation.created.v1"
	EventReservationReleased  = "booking.reservation.released.v1"
	EventReservationReclaimed = "booking.reservation.reclaimed.v1"
	EventReclaimedHoldPaid    = "booking.reservation.reclaimed_paid.v1"
	EventAppointmentCreated   = "booking.appointment.created.v1"
	EventAppointmentStatus    = "booking.appointment.status_changed.v1"
)

// NewEvent marshals payload as JSON into an envelope.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
