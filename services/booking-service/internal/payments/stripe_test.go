package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

type stripeStub struct {
	mu       sync.Mutex
	status   string
	metadata map[string]string
	calls    []string
	form     map[string]string
	idemKey  string
	capKey   string
}

func (s *stripeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, r.Method+" "+r.URL.Path)
	_ = r.ParseForm()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
		s.form = map[string]string{}
		for k := range r.PostForm {
			s.form[k] = r.PostForm.Get(k)
		}
		s.idemKey = r.Header.Get("Idempotency-Key")
		s.status = "requires_payment_method"
		s.metadata = map[string]string{"reservation_id": r.PostForm.Get("metadata[reservation_id]")}
		s.writeIntent(w)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_123":
		s.writeIntent(w)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_123/cancel":
		s.status = "canceled"
		s.writeIntent(w)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_123/capture":
		s.capKey = r.Header.Get("Idempotency-Key")
		s.status = "succeeded"
		s.writeIntent(w)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/refunds":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "re_1", "object": "refund", "status": "succeeded"})
	case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_missing":
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
			"type": "invalid_request_error", "code": "resource_missing", "message": "No such payment_intent",
		}})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"type": "invalid_request_error", "message": "unexpected"}})
	}
}

func (s *stripeStub) writeIntent(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":            "pi_123",
		"object":        "payment_intent",
		"client_secret": "pi_123_secret_abc",
		"status":        s.status,
		"metadata":      s.metadata,
	})
}

func (s *stripeStub) set(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func newStubGateway(t *testing.T) (*StripeGateway, *stripeStub) {
	t.Helper()
	stub := &stripeStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	gw, err := NewStripeGateway(StripeConfig{
		SecretKey: "sk_test_123",
		Backends:  &stripe.Backends{API: backend, Connect: backend, Uploads: backend},
	})
	require.NoError(t, err)
	return gw, stub
}

func TestStripeCreateHoldUsesManualCapture(t *testing.T) {
	gw, stub := newStubGateway(t)

	hold, err := gw.CreateHold(context.Background(), HoldRequest{
		AmountMinorUnits: 15000,
		Currency:         "usd",
		Metadata:         map[string]string{MetaReservationID: "res-1", MetaClientID: "c1"},
		IdempotencyKey:   "hold-res-1",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_123", hold.ID)
	require.Equal(t, "pi_123_secret_abc", hold.ClientSecret)

	require.Equal(t, "manual", stub.form["capture_method"])
	require.Equal(t, "15000", stub.form["amount"])
	require.Equal(t, "res-1", stub.form["metadata[reservation_id]"])
	require.Equal(t, "hold-res-1", stub.idemKey)
}

func TestStripeStatusMapping(t *testing.T) {
	gw, stub := newStubGateway(t)
	_, err := gw.CreateHold(context.Background(), HoldRequest{AmountMinorUnits: 100, Currency: "usd", Metadata: map[string]string{MetaReservationID: "res-1"}})
	require.NoError(t, err)

	cases := map[string]Status{
		"requires_payment_method": StatusPending,
		"requires_action":         StatusPending,
		"processing":              StatusPending,
		"requires_capture":        StatusSucceeded,
		"succeeded":               StatusSucceeded,
		"canceled":                StatusFailed,
	}
	for raw, want := range cases {
		stub.set(raw)
		st, err := gw.GetHoldStatus(context.Background(), "pi_123")
		require.NoError(t, err)
		require.Equal(t, want, st.Status, raw)
		require.Equal(t, raw, st.Raw)
		require.Equal(t, "res-1", st.Metadata[MetaReservationID])
	}
}

func TestStripeRefundCancelsUncapturedHold(t *testing.T) {
	gw, stub := newStubGateway(t)
	stub.set("requires_capture")

	require.NoError(t, gw.RefundHold(context.Background(), "pi_123"))
	require.Contains(t, stub.calls, "POST /v1/payment_intents/pi_123/cancel")
	require.NotContains(t, stub.calls, "POST /v1/refunds")
}

func TestStripeRefundCapturedHold(t *testing.T) {
	gw, stub := newStubGateway(t)
	stub.set("succeeded")

	require.NoError(t, gw.RefundHold(context.Background(), "pi_123"))
	require.Contains(t, stub.calls, "POST /v1/refunds")
}

func TestStripeCaptureAuthorizedHold(t *testing.T) {
	gw, stub := newStubGateway(t)
	stub.set("requires_capture")

	require.NoError(t, gw.CaptureHold(context.Background(), "pi_123"))
	require.Contains(t, stub.calls, "POST /v1/payment_intents/pi_123/capture")
	require.Equal(t, "capture-pi_123", stub.capKey)

	// Second capture sees succeeded and does not call Stripe again.
	require.NoError(t, gw.CaptureHold(context.Background(), "pi_123"))
	captures := 0
	for _, c := range stub.calls {
		if c == "POST /v1/payment_intents/pi_123/capture" {
			captures++
		}
	}
	require.Equal(t, 1, captures)
}

func TestStripeCaptureRejectsUnauthorizedHold(t *testing.T) {
	gw, stub := newStubGateway(t)
	stub.set("requires_payment_method")

	err := gw.CaptureHold(context.Background(), "pi_123")
	require.ErrorIs(t, err, ErrNotCapturable)
	require.NotContains(t, stub.calls, "POST /v1/payment_intents/pi_123/capture")
}

func TestStripeMissingHold(t *testing.T) {
	gw, _ := newStubGateway(t)
	_, err := gw.GetHoldStatus(context.Background(), "pi_missing")
	require.True(t, errors.Is(err, ErrHoldNotFound), "got %v", err)
}

func TestNewStripeGatewayRequiresKey(t *testing.T) {
	_, err := NewStripeGateway(StripeConfig{})
	require.Error(t, err)
}
