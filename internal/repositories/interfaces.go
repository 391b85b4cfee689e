// Package repositories declares the persistence contracts consumed by the
// service layer. Implementations live in subpackages per backing store.
package repositories

import (
	"context"
	"time"

	"github.com/cszshop/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists checkout orders and applies payment transitions.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	SetSessionID(ctx context.Context, orderID, sessionID string) error

	// MarkPaid atomically moves a pending order to paid, recording the
	// payment reference and timestamp. It reports false without error when
	// the order already left the pending state.
	MarkPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) (bool, error)

	// MarkCancelled atomically moves a pending order to cancelled. It
	// reports false without error when the order already left the pending
	// state.
	MarkCancelled(ctx context.Context, orderID string, cancelledAt time.Time) (bool, error)
}

// CouponRepository resolves discount codes.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
}

// CounterRepository hands out monotonically increasing sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, name string, step int64) (int64, error)
}
