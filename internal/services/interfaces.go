// Package services contains the business logic for checkout pricing, coupon
// validation, order lifecycle, and payment webhook processing.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/cszshop/api/internal/catalog"
	"github.com/cszshop/api/internal/domain"
)

// Logger is the structured logging contract injected into services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Clock supplies the current time, injectable for tests.
type Clock func() time.Time

var (
	// ErrEmptyCart rejects pricing requests without any line item.
	ErrEmptyCart = errors.New("pricing: cart is empty")
	// ErrInvalidQuantity rejects non-positive line quantities.
	ErrInvalidQuantity = errors.New("pricing: quantity must be at least 1")
	// ErrUnsupportedCountry rejects shipping destinations outside Hungary.
	ErrUnsupportedCountry = errors.New("pricing: unsupported shipping country")
	// ErrOrderNotFound is returned when a webhook references an unknown order.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrPersistence flags storage failures that callers should retry.
	ErrPersistence = errors.New("orders: persistence failure")
)

// CartLine is one client-submitted cart entry. Only ids and quantities are
// trusted; prices always come from the catalog.
type CartLine struct {
	ProductID string
	VariantID string
	Quantity  int64
}

// PricingCommand is the input for a checkout calculation.
type PricingCommand struct {
	Lines           []CartLine
	CouponCode      string
	ShippingCountry string
}

// PricedLine is a cart entry with authoritative amounts attached.
type PricedLine struct {
	CatalogID       string
	Name            string
	Kind            domain.LineItemKind
	Quantity        int64
	UnitPrice       int64
	UnitWeightGrams int64
	LineTotal       int64
}

// PricingResult carries every component of the checkout calculation. The
// invariant NetAmount + VATAmount == Total holds exactly.
type PricingResult struct {
	Lines                 []PricedLine
	Subtotal              int64
	Discount              int64
	CouponApplied         bool
	CouponError           string
	DiscountedSubtotal    int64
	TotalWeightGrams      int64
	ShippingFee           int64
	Total                 int64
	NetAmount             int64
	VATAmount             int64
	FreeShippingThreshold int64
}

// CatalogGateway resolves authoritative prices for cart lines.
type CatalogGateway interface {
	PriceLookup(ctx context.Context, productIDs, variantIDs []string) (map[string]catalog.PriceInfo, error)
}

// CouponRejectionError explains why a coupon was refused. The message is the
// user-facing storefront text; rejections never abort a checkout calculation.
type CouponRejectionError struct {
	Message string
}

func (e *CouponRejectionError) Error() string {
	if e == nil {
		return ""
	}
	return "coupon rejected: " + e.Message
}

// CouponOutcome is a successfully applied coupon.
type CouponOutcome struct {
	Coupon   domain.Coupon
	Discount int64
}

// CouponValidator evaluates a discount code against a subtotal.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal int64) (CouponOutcome, error)
}

// PricingEngine computes authoritative totals for a cart.
type PricingEngine interface {
	ComputeTotals(ctx context.Context, cmd PricingCommand) (PricingResult, error)
}

// CreateOrderCommand starts a checkout session for a priced cart.
type CreateOrderCommand struct {
	Lines           []CartLine
	CouponCode      string
	CustomerEmail   string
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	IdempotencyKey  string
}

// CheckoutSessionResult is returned to the storefront for redirecting.
type CheckoutSessionResult struct {
	OrderID     string
	OrderNumber string
	RedirectURL string
	Pricing     PricingResult
}

// CheckoutService creates pending orders and hosted payment sessions.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CreateOrderCommand) (CheckoutSessionResult, error)
}

// BankTransferCommand creates a pending order settled by manual bank transfer.
type BankTransferCommand struct {
	Lines            []CartLine
	CouponCode       string
	CustomerEmail    string
	ShippingAddress  domain.Address
	BillingAddress   domain.Address
	PurchaseOrderRef string
}

// BankAccount is the wire destination shown to the customer.
type BankAccount struct {
	AccountHolder string
	BankName      string
	IBAN          string
	BIC           string
}

// BankTransferResult carries the created order and its payment instructions.
// The payment reference must appear on the wire so the transfer can be
// matched to the order.
type BankTransferResult struct {
	OrderID          string
	OrderNumber      string
	PaymentReference string
	BankAccount      BankAccount
	Pricing          PricingResult
}

// BankTransferService creates pending orders paid outside the PSP.
type BankTransferService interface {
	CreateOrder(ctx context.Context, cmd BankTransferCommand) (BankTransferResult, error)
}

// PaymentEventCommand applies a verified webhook event to an order.
type PaymentEventCommand struct {
	EventID   string
	OrderID   string
	SessionID string
	PaymentID string
}

// OrderService drives the order state machine from payment events.
type OrderService interface {
	HandlePaymentConfirmed(ctx context.Context, cmd PaymentEventCommand) error
	HandlePaymentFailed(ctx context.Context, cmd PaymentEventCommand) error
}

// FulfillmentMessage is handed to the fulfillment pipeline when an order is paid.
type FulfillmentMessage struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	PaymentID   string    `json:"paymentId"`
	Total       int64     `json:"total"`
	PaidAt      time.Time `json:"paidAt"`
}

// FulfillmentNotifier publishes paid-order notifications.
type FulfillmentNotifier interface {
	NotifyOrderPaid(ctx context.Context, message FulfillmentMessage) (string, error)
}
