package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/payments"
	"github.com/cszshop/api/internal/platform/config"
	"github.com/cszshop/api/internal/repositories"
)

// orderNumberCounter is the counter document feeding order numbers.
const orderNumberCounter = "orders"

// ErrPaymentProvider flags PSP failures while creating the hosted session.
var ErrPaymentProvider = errors.New("checkout: payment provider failure")

// StripeCheckoutServiceConfig wires the checkout service dependencies.
type StripeCheckoutServiceConfig struct {
	Pricing  PricingEngine
	Orders   repositories.OrderRepository
	Counters repositories.CounterRepository
	Provider payments.Provider
	Checkout config.CheckoutConfig
	Clock    Clock
	Logger   Logger
	IDFn     func() string
}

// StripeCheckoutService prices the cart, persists the pending order, and
// creates the hosted payment session.
type StripeCheckoutService struct {
	pricing  PricingEngine
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	provider payments.Provider
	checkout config.CheckoutConfig
	clock    Clock
	logger   Logger
	newID    func() string
}

// NewStripeCheckoutService validates dependencies and builds the service.
func NewStripeCheckoutService(cfg StripeCheckoutServiceConfig) (*StripeCheckoutService, error) {
	if cfg.Pricing == nil {
		return nil, errors.New("checkout service requires a pricing engine")
	}
	if cfg.Orders == nil {
		return nil, errors.New("checkout service requires an order repository")
	}
	if cfg.Counters == nil {
		return nil, errors.New("checkout service requires a counter repository")
	}
	if cfg.Provider == nil {
		return nil, errors.New("checkout service requires a payment provider")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := cfg.IDFn
	if newID == nil {
		newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	return &StripeCheckoutService{
		pricing:  cfg.Pricing,
		orders:   cfg.Orders,
		counters: cfg.Counters,
		provider: cfg.Provider,
		checkout: cfg.Checkout,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    newID,
	}, nil
}

// CreateSession runs the full checkout start: authoritative pricing, pending
// order persistence, and hosted session creation. The session id is stored
// back on the order so webhook events can be correlated either way.
func (s *StripeCheckoutService) CreateSession(ctx context.Context, cmd CreateOrderCommand) (CheckoutSessionResult, error) {
	pricing, err := s.pricing.ComputeTotals(ctx, PricingCommand{
		Lines:           cmd.Lines,
		CouponCode:      cmd.CouponCode,
		ShippingCountry: cmd.ShippingAddress.Country,
	})
	if err != nil {
		return CheckoutSessionResult{}, err
	}

	now := s.clock()
	orderNumber, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return CheckoutSessionResult{}, fmt.Errorf("%w: order number: %v", ErrPersistence, err)
	}

	order := buildPendingOrder(s.newID(), orderNumber, domain.PaymentMethodCard, pricing, cmd.CouponCode, now)
	order.ShippingAddress = cmd.ShippingAddress
	order.BillingAddress = cmd.BillingAddress

	if err := s.orders.Insert(ctx, order); err != nil {
		return CheckoutSessionResult{}, fmt.Errorf("%w: insert order: %v", ErrPersistence, err)
	}

	session, err := s.provider.CreateCheckoutSession(ctx, s.sessionRequest(order, pricing, cmd))
	if err != nil {
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	if err := s.orders.SetSessionID(ctx, order.ID, session.ID); err != nil {
		// The webhook can still correlate through the order_id metadata.
		s.logger(ctx, "checkout.session.store_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"sessionId":   session.ID,
		"total":       pricing.Total,
	})

	return CheckoutSessionResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		RedirectURL: session.RedirectURL,
		Pricing:     pricing,
	}, nil
}

// nextOrderNumber formats the yearly sequence as CSZ-YYYY-NNNNNN.
func (s *StripeCheckoutService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return formatOrderNumber(now, seq), nil
}

func formatOrderNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("CSZ-%04d-%06d", now.Year(), seq)
}

// buildPendingOrder snapshots the authoritative pricing onto a new pending
// order. The coupon code is only recorded when the discount actually applied.
func buildPendingOrder(id, orderNumber string, method domain.PaymentMethod, pricing PricingResult, couponCode string, now time.Time) domain.Order {
	order := domain.Order{
		ID:            id,
		OrderNumber:   orderNumber,
		Status:        domain.OrderStatusPending,
		PaymentMethod: method,
		Items:         orderItems(pricing.Lines),
		Subtotal:      pricing.Subtotal,
		Discount:      pricing.Discount,
		ShippingFee:   pricing.ShippingFee,
		Total:         pricing.Total,
		NetAmount:     pricing.NetAmount,
		VATAmount:     pricing.VATAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if pricing.CouponApplied {
		order.CouponCode = strings.ToUpper(strings.TrimSpace(couponCode))
	}
	return order
}

// sessionRequest maps the priced order onto the PSP session. When a discount
// applies, the order is charged as one consolidated line so the session total
// matches the authoritative calculation exactly.
func (s *StripeCheckoutService) sessionRequest(order domain.Order, pricing PricingResult, cmd CreateOrderCommand) payments.CheckoutSessionRequest {
	req := payments.CheckoutSessionRequest{
		OrderID:        order.ID,
		Currency:       "huf",
		CustomerEmail:  cmd.CustomerEmail,
		SuccessURL:     s.checkout.SuccessURL,
		CancelURL:      s.checkout.CancelURL,
		IdempotencyKey: cmd.IdempotencyKey,
		Metadata: map[string]string{
			"order_number": order.OrderNumber,
		},
	}

	if pricing.Discount > 0 {
		req.Items = []payments.SessionLineItem{{
			Name:     fmt.Sprintf("Rendeles %s", order.OrderNumber),
			Quantity: 1,
			Amount:   pricing.Total,
		}}
		return req
	}

	items := make([]payments.SessionLineItem, 0, len(pricing.Lines))
	for _, line := range pricing.Lines {
		name := line.Name
		if name == "" {
			name = line.CatalogID
		}
		items = append(items, payments.SessionLineItem{
			Name:      name,
			Quantity:  line.Quantity,
			Amount:    line.UnitPrice,
			Reference: line.CatalogID,
		})
	}
	req.Items = items
	req.ShippingFee = pricing.ShippingFee
	return req
}

func orderItems(lines []PricedLine) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.LineItem{
			CatalogID:       line.CatalogID,
			Kind:            line.Kind,
			Name:            line.Name,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			UnitWeightGrams: line.UnitWeightGrams,
			LineTotal:       line.LineTotal,
		})
	}
	return items
}
