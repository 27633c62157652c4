// Package payments adapts the payment provider behind a small hold-oriented
// interface: place a hold, read its status, collect it or give the money back.
package payments

import (
	"context"
	"errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Metadata keys written on every hold.
const (
	MetaReservationID = "reservation_id"
	MetaClientID      = "client_id"
	MetaProviderID    = "provider_id"
	MetaStart         = "start"
	MetaEnd           = "end"
)

var (
	ErrHoldNotFound = errors.New("payment hold not found")
	// ErrNotCapturable means the hold was never authorized or was released.
	ErrNotCapturable = errors.New("payment hold cannot be captured")
)

type HoldRequest struct {
	AmountMinorUnits int64
	Currency         string
	Metadata         map[string]string
	IdempotencyKey   string
}

type Hold struct {
	ID           string
	ClientSecret string
}

type HoldStatus struct {
	Status Status
	// Raw is the provider's own status string, for logs and error details.
	Raw      string
	Metadata map[string]string
}

type Gateway interface {
	CreateHold(ctx context.Context, req HoldRequest) (Hold, error)
	GetHoldStatus(ctx context.Context, holdID string) (HoldStatus, error)
	// CaptureHold collects an authorized hold. Capturing a hold that was
	// already captured is a no-op.
	CaptureHold(ctx context.Context, holdID string) error
	// RefundHold releases an uncaptured hold or refunds a captured one.
	RefundHold(ctx context.Context, holdID string) error
}
