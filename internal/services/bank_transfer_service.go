package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/platform/config"
	"github.com/cszshop/api/internal/repositories"
)

// BankTransferOrderServiceConfig wires the bank-transfer service dependencies.
type BankTransferOrderServiceConfig struct {
	Pricing  PricingEngine
	Orders   repositories.OrderRepository
	Counters repositories.CounterRepository
	Checkout config.CheckoutConfig
	Clock    Clock
	Logger   Logger
	IDFn     func() string
}

// BankTransferOrderService prices the cart and persists a pending order that
// the customer settles by wiring the total manually. No PSP session is
// involved; the order stays pending until the transfer is reconciled.
type BankTransferOrderService struct {
	pricing  PricingEngine
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	checkout config.CheckoutConfig
	clock    Clock
	logger   Logger
	newID    func() string
}

// NewBankTransferOrderService validates dependencies and builds the service.
func NewBankTransferOrderService(cfg BankTransferOrderServiceConfig) (*BankTransferOrderService, error) {
	if cfg.Pricing == nil {
		return nil, errors.New("bank transfer service requires a pricing engine")
	}
	if cfg.Orders == nil {
		return nil, errors.New("bank transfer service requires an order repository")
	}
	if cfg.Counters == nil {
		return nil, errors.New("bank transfer service requires a counter repository")
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
	return &BankTransferOrderService{
		pricing:  cfg.Pricing,
		orders:   cfg.Orders,
		counters: cfg.Counters,
		checkout: cfg.Checkout,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    newID,
	}, nil
}

// CreateOrder prices the cart authoritatively and persists the pending order.
// The order number doubles as the payment reference the customer must quote
// on the wire.
func (s *BankTransferOrderService) CreateOrder(ctx context.Context, cmd BankTransferCommand) (BankTransferResult, error) {
	pricing, err := s.pricing.ComputeTotals(ctx, PricingCommand{
		Lines:           cmd.Lines,
		CouponCode:      cmd.CouponCode,
		ShippingCountry: cmd.ShippingAddress.Country,
	})
	if err != nil {
		return BankTransferResult{}, err
	}

	now := s.clock()
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return BankTransferResult{}, fmt.Errorf("%w: order number: %v", ErrPersistence, err)
	}
	orderNumber := formatOrderNumber(now, seq)

	order := buildPendingOrder(s.newID(), orderNumber, domain.PaymentMethodBankTransfer, pricing, cmd.CouponCode, now)
	order.PurchaseOrderRef = strings.TrimSpace(cmd.PurchaseOrderRef)
	order.ShippingAddress = cmd.ShippingAddress
	order.BillingAddress = cmd.BillingAddress

	if err := s.orders.Insert(ctx, order); err != nil {
		return BankTransferResult{}, fmt.Errorf("%w: insert order: %v", ErrPersistence, err)
	}

	s.logger(ctx, "checkout.bank_transfer.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       pricing.Total,
	})

	return BankTransferResult{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		PaymentReference: order.OrderNumber,
		BankAccount: BankAccount{
			AccountHolder: s.checkout.BankAccount.AccountHolder,
			BankName:      s.checkout.BankAccount.BankName,
			IBAN:          s.checkout.BankAccount.IBAN,
			BIC:           s.checkout.BankAccount.BIC,
		},
		Pricing: pricing,
	}, nil
}
