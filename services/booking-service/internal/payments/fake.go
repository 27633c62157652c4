package payments

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway keeps holds in memory. Holds start pending; Authorize and
// Decline move them on. It backs tests and local runs with
// ALLOW_FAKE_PAYMENTS enabled.
type FakeGateway struct {
	mu    sync.Mutex
	holds map[string]*fakeHold

	// Injected failures, returned by the next matching call when set.
	CreateErr error
	StatusErr  error
	CaptureErr error
	RefundErr  error
}

type fakeHold struct {
	amount   int64
	currency string
	status   Status
	metadata map[string]string
	captured bool
	refunded bool
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{holds: map[string]*fakeHold{}}
}

func (f *FakeGateway) CreateHold(ctx context.Context, req HoldRequest) (Hold, error) {
	if err := ctx.Err(); err != nil {
		return Hold{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return Hold{}, f.CreateErr
	}
	id := "pi_fake_" + uuid.NewString()
	f.holds[id] = &fakeHold{
		amount:   req.AmountMinorUnits,
		currency: req.Currency,
		status:   StatusPending,
		metadata: maps.Clone(req.Metadata),
	}
	return Hold{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *FakeGateway) GetHoldStatus(ctx context.Context, holdID string) (HoldStatus, error) {
	if err := ctx.Err(); err != nil {
		return HoldStatus{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return HoldStatus{}, f.StatusErr
	}
	h, ok := f.holds[holdID]
	if !ok {
		return HoldStatus{}, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	return HoldStatus{Status: h.status, Raw: string(h.status), Metadata: maps.Clone(h.metadata)}, nil
}

func (f *FakeGateway) CaptureHold(ctx context.Context, holdID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return f.CaptureErr
	}
	h, ok := f.holds[holdID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	if h.status != StatusSucceeded || h.refunded {
		return fmt.Errorf("%w: %s is %s", ErrNotCapturable, holdID, h.status)
	}
	h.captured = true
	return nil
}

func (f *FakeGateway) RefundHold(ctx context.Context, holdID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return f.RefundErr
	}
	h, ok := f.holds[holdID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	h.refunded = true
	return nil
}

// Authorize simulates the client completing payment.
func (f *FakeGateway) Authorize(holdID string) error {
	return f.setStatus(holdID, StatusSucceeded)
}

// Decline simulates a failed card.
func (f *FakeGateway) Decline(holdID string) error {
	return f.setStatus(holdID, StatusFailed)
}

// SetMetadata overwrites a hold's metadata, for tampering scenarios.
func (f *FakeGateway) SetMetadata(holdID string, md map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	h.metadata = maps.Clone(md)
	return nil
}

// HoldIDs lists every hold created so far, in no particular order.
func (f *FakeGateway) HoldIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Collect(maps.Keys(f.holds))
}

func (f *FakeGateway) Captured(holdID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	return ok && h.captured
}

func (f *FakeGateway) Refunded(holdID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	return ok && h.refunded
}

// Amount returns the held amount and currency.
func (f *FakeGateway) Amount(holdID string) (int64, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	if !ok {
		return 0, "", false
	}
	return h.amount, h.currency, true
}

func (f *FakeGateway) setStatus(holdID string, st Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	h.status = st
	return nil
}
