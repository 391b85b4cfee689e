package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	newFn func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (s *stubSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.newFn(params)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateCheckoutSessionBuildsParams(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	stub := &stubSessionAPI{
		newFn: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{
				ID:            "cs_1",
				URL:           "https://checkout.stripe.com/pay/cs_1",
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
				ExpiresAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix(),
			}, nil
		},
	}

	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: stub,
		Clock:    fixedClock(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("NewStripeProvider returned error: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:       "ord_42",
		Currency:      "HUF",
		CustomerEmail: "vevo@example.com",
		SuccessURL:    "https://shop.example.com/siker",
		CancelURL:     "https://shop.example.com/megszakitva",
		ShippingFee:   1990,
		Items: []SessionLineItem{
			{Name: "Csavar M8", Quantity: 4, Amount: 250, Reference: "prod-1"},
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession returned error: %v", err)
	}

	if session.ID != "cs_1" || session.IntentID != "pi_1" {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.RedirectURL != "https://checkout.stripe.com/pay/cs_1" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}

	if captured == nil {
		t.Fatal("expected session params to be captured")
	}
	if got := captured.Metadata[MetadataOrderID]; got != "ord_42" {
		t.Fatalf("expected order metadata on session, got %q", got)
	}
	if captured.PaymentIntentData == nil || captured.PaymentIntentData.Metadata[MetadataOrderID] != "ord_42" {
		t.Fatal("expected order metadata propagated to payment intent")
	}
	if len(captured.LineItems) != 2 {
		t.Fatalf("expected item plus shipping line, got %d lines", len(captured.LineItems))
	}
	if got := *captured.LineItems[0].PriceData.Currency; got != "huf" {
		t.Fatalf("expected lowercase currency, got %q", got)
	}
	if got := *captured.LineItems[1].PriceData.UnitAmount; got != 1990 {
		t.Fatalf("expected shipping line of 1990, got %d", got)
	}
}

func TestCreateCheckoutSessionRequiresLineItems(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions: &stubSessionAPI{newFn: func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			t.Fatal("session API must not be called")
			return nil, nil
		}},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider returned error: %v", err)
	}

	_, err = provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:    "ord_1",
		SuccessURL: "https://shop.example.com/siker",
		CancelURL:  "https://shop.example.com/megszakitva",
	})
	if err == nil {
		t.Fatal("expected error for empty line items")
	}
}
