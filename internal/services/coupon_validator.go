package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/repositories"
)

// Rejection messages are the user-facing storefront strings.
const (
	couponNotFoundMessage   = "Ervenytelen kuponkod"
	couponInactiveMessage   = "A kupon nem aktiv"
	couponNotYetValidMsg    = "A kupon meg nem ervenyes"
	couponExpiredMessage    = "A kupon lejart"
	couponUsageLimitMessage = "A kupon elerte a hasznalati limitet"
)

// StoreCouponValidatorConfig wires the coupon validator dependencies.
type StoreCouponValidatorConfig struct {
	Coupons repositories.CouponRepository
	Clock   Clock
	Logger  Logger
}

// StoreCouponValidator implements CouponValidator against the coupon store.
type StoreCouponValidator struct {
	coupons repositories.CouponRepository
	clock   Clock
	logger  Logger
}

// NewStoreCouponValidator validates dependencies and builds the validator.
func NewStoreCouponValidator(cfg StoreCouponValidatorConfig) (*StoreCouponValidator, error) {
	if cfg.Coupons == nil {
		return nil, errors.New("coupon validator requires a coupon repository")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StoreCouponValidator{
		coupons: cfg.Coupons,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// Validate evaluates the code against the subtotal. The checks run in a
// fixed order and the first failure wins: existence, active flag, validity
// window start, validity window end, usage limit, minimum order amount.
func (v *StoreCouponValidator) Validate(ctx context.Context, code string, subtotal int64) (CouponOutcome, error) {
	coupon, err := v.coupons.FindByCode(ctx, code)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return CouponOutcome{}, &CouponRejectionError{Message: couponNotFoundMessage}
		}
		return CouponOutcome{}, fmt.Errorf("coupon lookup %q: %w", code, err)
	}

	now := v.clock()

	if !coupon.Active {
		return CouponOutcome{}, &CouponRejectionError{Message: couponInactiveMessage}
	}
	if coupon.ValidFrom != nil && coupon.ValidFrom.After(now) {
		return CouponOutcome{}, &CouponRejectionError{Message: couponNotYetValidMsg}
	}
	if coupon.ValidUntil != nil && coupon.ValidUntil.Before(now) {
		return CouponOutcome{}, &CouponRejectionError{Message: couponExpiredMessage}
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return CouponOutcome{}, &CouponRejectionError{Message: couponUsageLimitMessage}
	}
	if coupon.MinimumOrderAmount > 0 && subtotal < coupon.MinimumOrderAmount {
		return CouponOutcome{}, &CouponRejectionError{
			Message: fmt.Sprintf("Minimum rendelesi osszeg: %d Ft", coupon.MinimumOrderAmount),
		}
	}

	discount := couponDiscount(coupon, subtotal)
	v.logger(ctx, "coupons.validated", map[string]any{
		"code":     coupon.Code,
		"discount": discount,
	})
	return CouponOutcome{Coupon: coupon, Discount: discount}, nil
}

// couponDiscount computes the discount amount. Percentage values are rounded
// half up, capped by the optional maximum, and never exceed the subtotal.
func couponDiscount(coupon domain.Coupon, subtotal int64) int64 {
	var discount int64
	switch coupon.Type {
	case domain.DiscountPercentage:
		discount = (subtotal*coupon.Value + 50) / 100
		if coupon.MaximumDiscount > 0 {
			discount = min64(discount, coupon.MaximumDiscount)
		}
	default:
		discount = coupon.Value
	}
	if discount < 0 {
		discount = 0
	}
	return min64(discount, subtotal)
}
