// Package payments abstracts the payment service provider behind an injected
// interface so services never reach for a package-level client.
package payments

import (
	"context"
	"time"
)

// MetadataOrderID is the metadata key carrying the internal order reference
// on PSP sessions and payment intents.
const MetadataOrderID = "order_id"

// SessionLineItem is a display line forwarded to the hosted checkout page.
// Amounts are HUF without minor units.
type SessionLineItem struct {
	Name      string
	Quantity  int64
	Amount    int64
	Reference string
}

// CheckoutSessionRequest describes the hosted checkout session to create.
type CheckoutSessionRequest struct {
	OrderID        string
	Currency       string
	Items          []SessionLineItem
	ShippingFee    int64
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession is the provider-agnostic view of a created session.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// Provider is the outbound PSP contract used by the checkout service.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}
