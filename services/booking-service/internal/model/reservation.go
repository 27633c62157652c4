package model

import (
	"strings"
	"time"
)

// PlaceholderHoldPrefix marks a reservation whose payment hold has not been
// created yet.
const PlaceholderHoldPrefix = "pending_"

type SlotReservation struct {
	ID            string
	ProviderID    string
	ClientID      string
	StartTime     time.Time
	EndTime       time.Time
	ReservedUntil time.Time
	PaymentHoldID string
	CreatedAt     time.Time
}

func (r SlotReservation) ActiveAt(now time.Time) bool {
	return now.Before(r.ReservedUntil)
}

func (r SlotReservation) HasPlaceholderHold() bool {
	return strings.HasPrefix(r.PaymentHoldID, PlaceholderHoldPrefix)
}
