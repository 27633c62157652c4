package payments

import (
	"context"
	"errors"
	"testing"
)

func TestFakeGatewayLifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFakeGateway()

	hold, err := f.CreateHold(ctx, HoldRequest{AmountMinorUnits: 5000, Currency: "usd", Metadata: map[string]string{MetaClientID: "c1"}})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	st, err := f.GetHoldStatus(ctx, hold.ID)
	if err != nil || st.Status != StatusPending || st.Metadata[MetaClientID] != "c1" {
		t.Fatalf("unexpected status %+v err=%v", st, err)
	}

	if err := f.CaptureHold(ctx, hold.ID); !errors.Is(err, ErrNotCapturable) {
		t.Fatalf("pending hold must not capture, got %v", err)
	}
	if err := f.Authorize(hold.ID); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if st, _ := f.GetHoldStatus(ctx, hold.ID); st.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", st.Status)
	}
	if err := f.CaptureHold(ctx, hold.ID); err != nil || !f.Captured(hold.ID) {
		t.Fatalf("expected capture, err=%v", err)
	}
	if err := f.RefundHold(ctx, hold.ID); err != nil || !f.Refunded(hold.ID) {
		t.Fatalf("expected refund, err=%v", err)
	}
	if amount, currency, ok := f.Amount(hold.ID); !ok || amount != 5000 || currency != "usd" {
		t.Fatalf("unexpected amount %d %s", amount, currency)
	}

	if _, err := f.GetHoldStatus(ctx, "pi_unknown"); !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
