package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type StripeConfig struct {
	SecretKey string
	// Timeout bounds every provider call.
	Timeout time.Duration
	// Backends overrides the API endpoint; tests point it at a local server.
	Backends *stripe.Backends
}

// StripeGateway places holds as PaymentIntents with manual capture, so an
// authorised card shows up as requires_capture until the booking is settled.
type StripeGateway struct {
	api     *client.API
	timeout time.Duration
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, cfg.Backends)
	return &StripeGateway{api: api, timeout: cfg.Timeout}, nil
}

func (g *StripeGateway) CreateHold(ctx context.Context, req HoldRequest) (Hold, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinorUnits),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Hold{}, fmt.Errorf("create payment intent: %w", err)
	}
	return Hold{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) GetHoldStatus(ctx context.Context, holdID string) (HoldStatus, error) {
	pi, err := g.get(ctx, holdID)
	if err != nil {
		return HoldStatus{}, err
	}
	return HoldStatus{Status: mapIntentStatus(pi), Raw: string(pi.Status), Metadata: pi.Metadata}, nil
}

func (g *StripeGateway) CaptureHold(ctx context.Context, holdID string) error {
	pi, err := g.get(ctx, holdID)
	if err != nil {
		return err
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return nil
	case stripe.PaymentIntentStatusRequiresCapture:
	default:
		return fmt.Errorf("%w: %s is %s", ErrNotCapturable, holdID, pi.Status)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + holdID)
	if _, err := g.api.PaymentIntents.Capture(holdID, params); err != nil {
		return fmt.Errorf("capture payment intent %s: %w", holdID, err)
	}
	return nil
}

func (g *StripeGateway) RefundHold(ctx context.Context, holdID string) error {
	pi, err := g.get(ctx, holdID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	switch pi.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusSucceeded:
		params := &stripe.RefundParams{PaymentIntent: stripe.String(holdID)}
		params.Context = ctx
		params.SetIdempotencyKey("refund-" + holdID)
		if _, err := g.api.Refunds.New(params); err != nil {
			return fmt.Errorf("refund payment intent %s: %w", holdID, err)
		}
		return nil
	default:
		// Uncaptured holds, including requires_capture, are released by cancelling.
		params := &stripe.PaymentIntentCancelParams{}
		params.Context = ctx
		if _, err := g.api.PaymentIntents.Cancel(holdID, params); err != nil {
			return fmt.Errorf("cancel payment intent %s: %w", holdID, err)
		}
		return nil
	}
}

func (g *StripeGateway) get(ctx context.Context, holdID string) (*stripe.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(holdID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
		}
		return nil, fmt.Errorf("get payment intent %s: %w", holdID, err)
	}
	return pi, nil
}

func mapIntentStatus(pi *stripe.PaymentIntent) Status {
	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return StatusFailed
		}
		return StatusPending
	default:
		return StatusPending
	}
}
