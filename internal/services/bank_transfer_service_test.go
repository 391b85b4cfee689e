package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/platform/config"
)

func testBankAccount() config.BankAccountConfig {
	return config.BankAccountConfig{
		AccountHolder: "CSZ Tuzvedelmi Kft.",
		BankName:      "OTP Bank",
		IBAN:          "HU12 1234 5678 9012 3456 7890 1234",
		BIC:           "OTPVHUHB",
	}
}

type bankTransferFixture struct {
	service  *BankTransferOrderService
	orders   *stubOrderRepository
	inserted *domain.Order
}

func newBankTransferFixture(t *testing.T, pricing PricingResult) *bankTransferFixture {
	t.Helper()
	fx := &bankTransferFixture{}
	fx.orders = &stubOrderRepository{
		insertFn: func(_ context.Context, order domain.Order) error {
			fx.inserted = &order
			return nil
		},
	}
	service, err := NewBankTransferOrderService(BankTransferOrderServiceConfig{
		Pricing: &stubPricingEngine{computeFn: func(context.Context, PricingCommand) (PricingResult, error) {
			return pricing, nil
		}},
		Orders: fx.orders,
		Counters: &stubCounterRepository{nextFn: func(_ context.Context, name string, _ int64) (int64, error) {
			require.Equal(t, orderNumberCounter, name)
			return 42, nil
		}},
		Checkout: config.CheckoutConfig{BankAccount: testBankAccount()},
		Clock:    fixedValidatorClock,
		IDFn:     func() string { return "order-1" },
	})
	require.NoError(t, err)
	fx.service = service
	return fx
}

func TestBankTransferCreatesPendingOrder(t *testing.T) {
	fx := newBankTransferFixture(t, pricedCart())

	result, err := fx.service.CreateOrder(context.Background(), BankTransferCommand{
		Lines:            []CartLine{{ProductID: "prod-1", Quantity: 10}, {VariantID: "var-2", Quantity: 100}},
		CustomerEmail:    "beszerzes@example.hu",
		ShippingAddress:  domain.Address{Country: "hu", City: "Budapest"},
		BillingAddress:   domain.Address{Country: "hu", City: "Debrecen"},
		PurchaseOrderRef: "PO-2026-17",
	})
	require.NoError(t, err)
	require.Equal(t, "order-1", result.OrderID)
	require.Equal(t, "CSZ-2026-000042", result.OrderNumber)
	require.Equal(t, result.OrderNumber, result.PaymentReference)
	require.Equal(t, testBankAccount().IBAN, result.BankAccount.IBAN)
	require.Equal(t, testBankAccount().BIC, result.BankAccount.BIC)

	require.NotNil(t, fx.inserted)
	require.Equal(t, domain.OrderStatusPending, fx.inserted.Status)
	require.Equal(t, domain.PaymentMethodBankTransfer, fx.inserted.PaymentMethod)
	require.Equal(t, "PO-2026-17", fx.inserted.PurchaseOrderRef)
	require.Equal(t, "Debrecen", fx.inserted.BillingAddress.City)
	require.EqualValues(t, 13490, fx.inserted.Total)
	require.Equal(t, fx.inserted.Total, fx.inserted.NetAmount+fx.inserted.VATAmount)
}

func TestBankTransferRecordsAppliedCoupon(t *testing.T) {
	pricing := pricedCart()
	pricing.Discount = 2000
	pricing.CouponApplied = true
	pricing.DiscountedSubtotal = 9500
	pricing.Total = 11490
	fx := newBankTransferFixture(t, pricing)

	_, err := fx.service.CreateOrder(context.Background(), BankTransferCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 10}},
		CouponCode:      "nyar20",
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.NoError(t, err)
	require.Equal(t, "NYAR20", fx.inserted.CouponCode)
}

func TestBankTransferPricingFailurePropagates(t *testing.T) {
	service, err := NewBankTransferOrderService(BankTransferOrderServiceConfig{
		Pricing: &stubPricingEngine{computeFn: func(context.Context, PricingCommand) (PricingResult, error) {
			return PricingResult{}, ErrEmptyCart
		}},
		Orders:   &stubOrderRepository{},
		Counters: &stubCounterRepository{nextFn: func(context.Context, string, int64) (int64, error) { return 0, nil }},
	})
	require.NoError(t, err)

	_, err = service.CreateOrder(context.Background(), BankTransferCommand{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestBankTransferCounterFailure(t *testing.T) {
	service, err := NewBankTransferOrderService(BankTransferOrderServiceConfig{
		Pricing: &stubPricingEngine{computeFn: func(context.Context, PricingCommand) (PricingResult, error) {
			return pricedCart(), nil
		}},
		Orders: &stubOrderRepository{},
		Counters: &stubCounterRepository{nextFn: func(context.Context, string, int64) (int64, error) {
			return 0, errors.New("transaction aborted")
		}},
	})
	require.NoError(t, err)

	_, err = service.CreateOrder(context.Background(), BankTransferCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.ErrorIs(t, err, ErrPersistence)
}

func TestBankTransferInsertFailure(t *testing.T) {
	fx := newBankTransferFixture(t, pricedCart())
	fx.orders.insertFn = func(context.Context, domain.Order) error {
		return errors.New("deadline exceeded")
	}

	_, err := fx.service.CreateOrder(context.Background(), BankTransferCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingAddress: domain.Address{Country: "hu"},
	})
	require.ErrorIs(t, err, ErrPersistence)
}
