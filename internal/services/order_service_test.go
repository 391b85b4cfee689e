package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cszshop/api/internal/domain"
)

type stubOrderRepository struct {
	insertFn        func(ctx context.Context, order domain.Order) error
	findByIDFn      func(ctx context.Context, orderID string) (domain.Order, error)
	setSessionIDFn  func(ctx context.Context, orderID, sessionID string) error
	markPaidFn      func(ctx context.Context, orderID, paymentID string, paidAt time.Time) (bool, error)
	markCancelledFn func(ctx context.Context, orderID string, cancelledAt time.Time) (bool, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return s.insertFn(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn == nil {
		return domain.Order{}, notFoundRepoError{}
	}
	return s.findByIDFn(ctx, orderID)
}

func (s *stubOrderRepository) SetSessionID(ctx context.Context, orderID, sessionID string) error {
	return s.setSessionIDFn(ctx, orderID, sessionID)
}

func (s *stubOrderRepository) MarkPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) (bool, error) {
	return s.markPaidFn(ctx, orderID, paymentID, paidAt)
}

func (s *stubOrderRepository) MarkCancelled(ctx context.Context, orderID string, cancelledAt time.Time) (bool, error) {
	return s.markCancelledFn(ctx, orderID, cancelledAt)
}

type stubFulfillmentNotifier struct {
	published []FulfillmentMessage
	err       error
}

func (s *stubFulfillmentNotifier) NotifyOrderPaid(_ context.Context, message FulfillmentMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.published = append(s.published, message)
	return "msg-1", nil
}

func newTestOrderService(t *testing.T, orders *stubOrderRepository, fulfillment FulfillmentNotifier) *PaymentOrderService {
	t.Helper()
	service, err := NewPaymentOrderService(PaymentOrderServiceConfig{
		Orders:      orders,
		Fulfillment: fulfillment,
		Clock:       fixedValidatorClock,
	})
	require.NoError(t, err)
	return service
}

func TestHandlePaymentConfirmedAppliesTransition(t *testing.T) {
	var markPaidCalls int
	paidAt := fixedValidatorClock()
	orders := &stubOrderRepository{
		markPaidFn: func(_ context.Context, orderID, paymentID string, at time.Time) (bool, error) {
			markPaidCalls++
			require.Equal(t, "order-1", orderID)
			require.Equal(t, "pi_123", paymentID)
			require.Equal(t, paidAt, at)
			return true, nil
		},
		findByIDFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{
				ID:          "order-1",
				OrderNumber: "CSZ-2026-000042",
				Total:       13490,
				PaidAt:      &paidAt,
			}, nil
		},
	}
	fulfillment := &stubFulfillmentNotifier{}
	service := newTestOrderService(t, orders, fulfillment)

	err := service.HandlePaymentConfirmed(context.Background(), PaymentEventCommand{
		EventID:   "evt_1",
		OrderID:   "order-1",
		PaymentID: "pi_123",
	})
	require.NoError(t, err)
	require.Equal(t, 1, markPaidCalls)
	require.Len(t, fulfillment.published, 1)
	require.Equal(t, "CSZ-2026-000042", fulfillment.published[0].OrderNumber)
	require.EqualValues(t, 13490, fulfillment.published[0].Total)
	require.Equal(t, paidAt, fulfillment.published[0].PaidAt)
}

func TestHandlePaymentConfirmedDuplicateIsNoop(t *testing.T) {
	orders := &stubOrderRepository{
		markPaidFn: func(context.Context, string, string, time.Time) (bool, error) {
			return false, nil
		},
	}
	fulfillment := &stubFulfillmentNotifier{}
	service := newTestOrderService(t, orders, fulfillment)

	err := service.HandlePaymentConfirmed(context.Background(), PaymentEventCommand{
		EventID: "evt_dup",
		OrderID: "order-1",
	})
	require.NoError(t, err)
	require.Empty(t, fulfillment.published)
}

func TestHandlePaymentFailedAfterPaidIsNoop(t *testing.T) {
	orders := &stubOrderRepository{
		markCancelledFn: func(context.Context, string, time.Time) (bool, error) {
			// The conditional update refuses to leave the paid state.
			return false, nil
		},
	}
	service := newTestOrderService(t, orders, nil)

	err := service.HandlePaymentFailed(context.Background(), PaymentEventCommand{
		EventID: "evt_late_failure",
		OrderID: "order-1",
	})
	require.NoError(t, err)
}

func TestHandlePaymentFailedCancelsPendingOrder(t *testing.T) {
	var cancelled bool
	orders := &stubOrderRepository{
		markCancelledFn: func(_ context.Context, orderID string, _ time.Time) (bool, error) {
			cancelled = true
			require.Equal(t, "order-1", orderID)
			return true, nil
		},
	}
	service := newTestOrderService(t, orders, nil)

	err := service.HandlePaymentFailed(context.Background(), PaymentEventCommand{
		EventID: "evt_fail",
		OrderID: "order-1",
	})
	require.NoError(t, err)
	require.True(t, cancelled)
}

func TestHandlePaymentConfirmedMissingOrderReference(t *testing.T) {
	service := newTestOrderService(t, &stubOrderRepository{}, nil)

	err := service.HandlePaymentConfirmed(context.Background(), PaymentEventCommand{EventID: "evt_1"})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestHandlePaymentConfirmedUnknownOrder(t *testing.T) {
	orders := &stubOrderRepository{
		markPaidFn: func(context.Context, string, string, time.Time) (bool, error) {
			return false, notFoundRepoError{}
		},
	}
	service := newTestOrderService(t, orders, nil)

	err := service.HandlePaymentConfirmed(context.Background(), PaymentEventCommand{
		EventID: "evt_1",
		OrderID: "ghost",
	})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestHandlePaymentConfirmedStorageFailure(t *testing.T) {
	orders := &stubOrderRepository{
		markPaidFn: func(context.Context, string, string, time.Time) (bool, error) {
			return false, errors.New("deadline exceeded")
		},
	}
	service := newTestOrderService(t, orders, nil)

	err := service.HandlePaymentConfirmed(context.Background(), PaymentEventCommand{
		EventID: "evt_1",
		OrderID: "order-1",
	})
	require.ErrorIs(t, err, ErrPersistence)
}

func TestHandlePaymentConfirmedPublishFailureIsNonFatal(t *testing.T) {
	orders := &stubOrderRepository{
		markPaidFn: func(context.Context, string, string, time.Time) (bool, error) {
			return true, nil
		},
		findByIDFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{ID: "order-1", OrderNumber: "CSZ-2026-000042"}, nil
		},
	}
	fulfillment := &stubFulfillmentNotifier{err: errors.New("topic unavailable")}
	service := newTestOrderService(t, orders, fulfillment)

	err := service.HandlePaymentConfirmed(context.Background(), PaymentEventCommand{
		EventID:   "evt_1",
		OrderID:   "order-1",
		PaymentID: "pi_123",
	})
	require.NoError(t, err)
}
