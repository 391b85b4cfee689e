package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/repositories"
)

// PaymentOrderServiceConfig wires the order service dependencies.
type PaymentOrderServiceConfig struct {
	Orders      repositories.OrderRepository
	Fulfillment FulfillmentNotifier
	Clock       Clock
	Logger      Logger
}

// PaymentOrderService applies verified payment events to orders. Handlers are
// idempotent: events for orders that already left the pending state are
// acknowledged without touching anything, which keeps at-least-once and
// out-of-order webhook delivery safe.
type PaymentOrderService struct {
	orders      repositories.OrderRepository
	fulfillment FulfillmentNotifier
	clock       Clock
	logger      Logger
}

// NewPaymentOrderService validates dependencies and builds the service.
func NewPaymentOrderService(cfg PaymentOrderServiceConfig) (*PaymentOrderService, error) {
	if cfg.Orders == nil {
		return nil, errors.New("order service requires an order repository")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentOrderService{
		orders:      cfg.Orders,
		fulfillment: cfg.Fulfillment,
		clock:       func() time.Time { return clock().UTC() },
		logger:      logger,
	}, nil
}

// HandlePaymentConfirmed moves a pending order to paid, recording the payment
// reference, and kicks off fulfillment. Duplicate confirmations are no-ops.
func (s *PaymentOrderService) HandlePaymentConfirmed(ctx context.Context, cmd PaymentEventCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: event %s carries no order reference", ErrOrderNotFound, cmd.EventID)
	}

	applied, err := s.orders.MarkPaid(ctx, orderID, cmd.PaymentID, s.clock())
	if err != nil {
		return s.classify(orderID, err)
	}
	if !applied {
		s.logger(ctx, "orders.transition.noop", map[string]any{
			"orderId": orderID,
			"eventId": cmd.EventID,
			"target":  string(domain.OrderStatusPaid),
		})
		return nil
	}

	s.logger(ctx, "orders.paid", map[string]any{
		"orderId":   orderID,
		"eventId":   cmd.EventID,
		"paymentId": cmd.PaymentID,
	})
	s.notifyFulfillment(ctx, orderID, cmd.PaymentID)
	return nil
}

// HandlePaymentFailed moves a pending order to cancelled. A failure event
// arriving after the order was paid never reverts it.
func (s *PaymentOrderService) HandlePaymentFailed(ctx context.Context, cmd PaymentEventCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: event %s carries no order reference", ErrOrderNotFound, cmd.EventID)
	}

	applied, err := s.orders.MarkCancelled(ctx, orderID, s.clock())
	if err != nil {
		return s.classify(orderID, err)
	}
	if !applied {
		s.logger(ctx, "orders.transition.noop", map[string]any{
			"orderId": orderID,
			"eventId": cmd.EventID,
			"target":  string(domain.OrderStatusCancelled),
		})
		return nil
	}

	s.logger(ctx, "orders.cancelled", map[string]any{
		"orderId": orderID,
		"eventId": cmd.EventID,
	})
	return nil
}

// notifyFulfillment publishes the paid-order message. The transition already
// committed, so publish failures are logged rather than bubbled up.
func (s *PaymentOrderService) notifyFulfillment(ctx context.Context, orderID, paymentID string) {
	if s.fulfillment == nil {
		return
	}

	message := FulfillmentMessage{
		OrderID:   orderID,
		PaymentID: paymentID,
		PaidAt:    s.clock(),
	}
	if order, err := s.orders.FindByID(ctx, orderID); err == nil {
		message.OrderNumber = order.OrderNumber
		message.Total = order.Total
		if order.PaidAt != nil {
			message.PaidAt = *order.PaidAt
		}
	} else {
		s.logger(ctx, "orders.fulfillment.load_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}

	if _, err := s.fulfillment.NotifyOrderPaid(ctx, message); err != nil {
		s.logger(ctx, "orders.fulfillment.publish_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (s *PaymentOrderService) classify(orderID string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return fmt.Errorf("%w: order %s: %v", ErrPersistence, orderID, err)
}
