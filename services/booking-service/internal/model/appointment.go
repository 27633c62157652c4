package model

import "time"

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func ParseAppointmentStatus(raw string) (AppointmentStatus, bool) {
	switch s := AppointmentStatus(raw); s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return s, true
	}
	return "", false
}

// CanTransition allows pending->confirmed, pending->cancelled and
// confirmed->cancelled only.
func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled
	default:
		return false
	}
}

// Blocks reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Blocks() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Appointment struct {
	ID            string
	ProviderID    string
	ClientID      string
	StartTime     time.Time
	EndTime       time.Time
	Status        AppointmentStatus
	PaymentHoldID string
	PaymentStatus string
	CreatedAt     time.Time
}
