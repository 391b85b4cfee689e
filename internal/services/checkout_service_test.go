package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/payments"
	"github.com/cszshop/api/internal/platform/config"
)

type stubPricingEngine struct {
	computeFn func(ctx context.Context, cmd PricingCommand) (PricingResult, error)
}

func (s *stubPricingEngine) ComputeTotals(ctx context.Context, cmd PricingCommand) (PricingResult, error) {
	return s.computeFn(ctx, cmd)
}

type stubCounterRepository struct {
	nextFn func(ctx context.Context, name string, step int64) (int64, error)
}

func (s *stubCounterRepository) Next(ctx context.Context, name string, step int64) (int64, error) {
	return s.nextFn(ctx, name, step)
}

type stubPaymentProvider struct {
	request payments.CheckoutSessionRequest
	session payments.CheckoutSession
	err     error
}

func (s *stubPaymentProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.request = req
	if s.err != nil {
		return payments.CheckoutSession{}, s.err
	}
	return s.session, nil
}

func pricedCart() PricingResult {
	return PricingResult{
		Lines: []PricedLine{
			{CatalogID: "prod-1", Name: "Csavar M8", Kind: domain.LineItemProduct, Quantity: 10, UnitPrice: 250, UnitWeightGrams: 20, LineTotal: 2500},
			{CatalogID: "var-2", Name: "Anya M8", Kind: domain.LineItemVariant, Quantity: 100, UnitPrice: 90, UnitWeightGrams: 5, LineTotal: 9000},
		},
		Subtotal:           11500,
		DiscountedSubtotal: 11500,
		TotalWeightGrams:   700,
		ShippingFee:        1990,
		Total:              13490,
		NetAmount:          10622,
		VATAmount:          2868,
	}
}

type checkoutFixture struct {
	service  *StripeCheckoutService
	orders   *stubOrderRepository
	provider *stubPaymentProvider
	inserted *domain.Order
	sessions map[string]string
}

func newCheckoutFixture(t *testing.T, pricing PricingResult) *checkoutFixture {
	t.Helper()
	fx := &checkoutFixture{
		provider: &stubPaymentProvider{session: payments.CheckoutSession{
			ID:          "cs_test_1",
			Provider:    "stripe",
			RedirectURL: "https://checkout.stripe.com/pay/cs_test_1",
		}},
		sessions: make(map[string]string),
	}
	fx.orders = &stubOrderRepository{
		insertFn: func(_ context.Context, order domain.Order) error {
			fx.inserted = &order
			return nil
		},
		setSessionIDFn: func(_ context.Context, orderID, sessionID string) error {
			fx.sessions[orderID] = sessionID
			return nil
		},
	}
	service, err := NewStripeCheckoutService(StripeCheckoutServiceConfig{
		Pricing: &stubPricingEngine{computeFn: func(context.Context, PricingCommand) (PricingResult, error) {
			return pricing, nil
		}},
		Orders: fx.orders,
		Counters: &stubCounterRepository{nextFn: func(_ context.Context, name string, _ int64) (int64, error) {
			require.Equal(t, orderNumberCounter, name)
			return 42, nil
		}},
		Provider: fx.provider,
		Checkout: config.CheckoutConfig{
			SuccessURL: "https://cszshop.hu/siker",
			CancelURL:  "https://cszshop.hu/megse",
		},
		Clock: fixedValidatorClock,
		IDFn:  func() string { return "order-1" },
	})
	require.NoError(t, err)
	fx.service = service
	return fx
}

func TestCreateSessionPersistsPendingOrder(t *testing.T) {
	fx := newCheckoutFixture(t, pricedCart())

	result, err := fx.service.CreateSession(context.Background(), CreateOrderCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 10}, {VariantID: "var-2", Quantity: 100}},
		CustomerEmail:   "vevo@example.hu",
		ShippingAddress: domain.Address{Country: "hu", City: "Budapest"},
	})
	require.NoError(t, err)
	require.Equal(t, "order-1", result.OrderID)
	require.Equal(t, "CSZ-2026-000042", result.OrderNumber)
	require.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", result.RedirectURL)

	require.NotNil(t, fx.inserted)
	require.Equal(t, domain.OrderStatusPending, fx.inserted.Status)
	require.Equal(t, domain.PaymentMethodCard, fx.inserted.PaymentMethod)
	require.Equal(t, "CSZ-2026-000042", fx.inserted.OrderNumber)
	require.Len(t, fx.inserted.Items, 2)
	require.EqualValues(t, 13490, fx.inserted.Total)
	require.Equal(t, fx.inserted.Total, fx.inserted.NetAmount+fx.inserted.VATAmount)
	require.Equal(t, "cs_test_1", fx.sessions["order-1"])
}

func TestCreateSessionItemizedLinesWithoutDiscount(t *testing.T) {
	fx := newCheckoutFixture(t, pricedCart())

	_, err := fx.service.CreateSession(context.Background(), CreateOrderCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 10}},
		CustomerEmail:   "vevo@example.hu",
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.NoError(t, err)

	req := fx.provider.request
	require.Equal(t, "order-1", req.OrderID)
	require.Equal(t, "huf", req.Currency)
	require.Len(t, req.Items, 2)
	require.Equal(t, "Csavar M8", req.Items[0].Name)
	require.EqualValues(t, 250, req.Items[0].Amount)
	require.EqualValues(t, 1990, req.ShippingFee)
	require.Equal(t, "CSZ-2026-000042", req.Metadata["order_number"])
}

func TestCreateSessionDiscountUsesConsolidatedLine(t *testing.T) {
	pricing := pricedCart()
	pricing.Discount = 2000
	pricing.CouponApplied = true
	pricing.DiscountedSubtotal = 9500
	pricing.Total = 11490
	fx := newCheckoutFixture(t, pricing)

	_, err := fx.service.CreateSession(context.Background(), CreateOrderCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 10}},
		CouponCode:      "nyar20",
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.NoError(t, err)

	req := fx.provider.request
	// A single line carries the discounted total so the session charges
	// exactly what the calculation produced.
	require.Len(t, req.Items, 1)
	require.EqualValues(t, 11490, req.Items[0].Amount)
	require.EqualValues(t, 0, req.ShippingFee)
	require.Equal(t, "NYAR20", fx.inserted.CouponCode)
}

func TestCreateSessionPricingFailurePropagates(t *testing.T) {
	service, err := NewStripeCheckoutService(StripeCheckoutServiceConfig{
		Pricing: &stubPricingEngine{computeFn: func(context.Context, PricingCommand) (PricingResult, error) {
			return PricingResult{}, ErrEmptyCart
		}},
		Orders:   &stubOrderRepository{},
		Counters: &stubCounterRepository{nextFn: func(context.Context, string, int64) (int64, error) { return 0, nil }},
		Provider: &stubPaymentProvider{},
	})
	require.NoError(t, err)

	_, err = service.CreateSession(context.Background(), CreateOrderCommand{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateSessionProviderFailure(t *testing.T) {
	fx := newCheckoutFixture(t, pricedCart())
	fx.provider.err = errors.New("stripe unavailable")

	_, err := fx.service.CreateSession(context.Background(), CreateOrderCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.ErrorIs(t, err, ErrPaymentProvider)
}

func TestCreateSessionStoreSessionIDFailureIsNonFatal(t *testing.T) {
	fx := newCheckoutFixture(t, pricedCart())
	fx.orders.setSessionIDFn = func(context.Context, string, string) error {
		return errors.New("deadline exceeded")
	}

	result, err := fx.service.CreateSession(context.Background(), CreateOrderCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", result.RedirectURL)
}

func TestCreateSessionCounterFailure(t *testing.T) {
	fx := newCheckoutFixture(t, pricedCart())
	service, err := NewStripeCheckoutService(StripeCheckoutServiceConfig{
		Pricing: &stubPricingEngine{computeFn: func(context.Context, PricingCommand) (PricingResult, error) {
			return pricedCart(), nil
		}},
		Orders: fx.orders,
		Counters: &stubCounterRepository{nextFn: func(context.Context, string, int64) (int64, error) {
			return 0, errors.New("transaction aborted")
		}},
		Provider: fx.provider,
		Clock:    fixedValidatorClock,
	})
	require.NoError(t, err)

	_, err = service.CreateSession(context.Background(), CreateOrderCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.ErrorIs(t, err, ErrPersistence)
}
