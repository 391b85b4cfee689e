package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cszshop/api/internal/domain"
)

type stubCouponRepository struct {
	findByCodeFn func(ctx context.Context, code string) (domain.Coupon, error)
}

func (s *stubCouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return s.findByCodeFn(ctx, code)
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "document not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }

func fixedValidatorClock() time.Time {
	return time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
}

func newTestValidator(t *testing.T, repo *stubCouponRepository) *StoreCouponValidator {
	t.Helper()
	validator, err := NewStoreCouponValidator(StoreCouponValidatorConfig{
		Coupons: repo,
		Clock:   fixedValidatorClock,
	})
	require.NoError(t, err)
	return validator
}

func activeCoupon() domain.Coupon {
	from := fixedValidatorClock().Add(-24 * time.Hour)
	until := fixedValidatorClock().Add(24 * time.Hour)
	return domain.Coupon{
		ID:         "coupon-1",
		Code:       "NYAR20",
		Type:       domain.DiscountPercentage,
		Value:      20,
		Active:     true,
		ValidFrom:  &from,
		ValidUntil: &until,
	}
}

func requireRejection(t *testing.T, err error, message string) {
	t.Helper()
	var rejection *CouponRejectionError
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, message, rejection.Message)
}

func TestValidateUnknownCodeIsRejected(t *testing.T) {
	repo := &stubCouponRepository{findByCodeFn: func(context.Context, string) (domain.Coupon, error) {
		return domain.Coupon{}, notFoundRepoError{}
	}}
	validator := newTestValidator(t, repo)

	_, err := validator.Validate(context.Background(), "SEMMI", 10000)
	requireRejection(t, err, couponNotFoundMessage)
}

func TestValidateLookupFailureIsNotARejection(t *testing.T) {
	repo := &stubCouponRepository{findByCodeFn: func(context.Context, string) (domain.Coupon, error) {
		return domain.Coupon{}, errors.New("deadline exceeded")
	}}
	validator := newTestValidator(t, repo)

	_, err := validator.Validate(context.Background(), "NYAR20", 10000)
	require.Error(t, err)
	var rejection *CouponRejectionError
	require.False(t, errors.As(err, &rejection))
}

func TestValidateRejectionOrder(t *testing.T) {
	future := fixedValidatorClock().Add(time.Hour)
	past := fixedValidatorClock().Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(*domain.Coupon)
		message string
	}{
		{
			name:    "inactive wins over everything after existence",
			mutate:  func(c *domain.Coupon) { c.Active = false; c.ValidUntil = &past },
			message: couponInactiveMessage,
		},
		{
			name:    "not yet valid",
			mutate:  func(c *domain.Coupon) { c.ValidFrom = &future },
			message: couponNotYetValidMsg,
		},
		{
			name:    "expired",
			mutate:  func(c *domain.Coupon) { c.ValidUntil = &past },
			message: couponExpiredMessage,
		},
		{
			name:    "usage limit reached",
			mutate:  func(c *domain.Coupon) { c.UsageLimit = 100; c.UsedCount = 100 },
			message: couponUsageLimitMessage,
		},
		{
			name:    "below minimum order amount",
			mutate:  func(c *domain.Coupon) { c.MinimumOrderAmount = 20000 },
			message: "Minimum rendelesi osszeg: 20000 Ft",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			coupon := activeCoupon()
			tc.mutate(&coupon)
			repo := &stubCouponRepository{findByCodeFn: func(context.Context, string) (domain.Coupon, error) {
				return coupon, nil
			}}
			validator := newTestValidator(t, repo)

			_, err := validator.Validate(context.Background(), coupon.Code, 10000)
			requireRejection(t, err, tc.message)
		})
	}
}

func TestValidatePercentageDiscountCappedByMaximum(t *testing.T) {
	coupon := activeCoupon()
	coupon.MaximumDiscount = 2000
	repo := &stubCouponRepository{findByCodeFn: func(context.Context, string) (domain.Coupon, error) {
		return coupon, nil
	}}
	validator := newTestValidator(t, repo)

	// 20% of 30000 is 6000, the cap brings it down to 2000.
	outcome, err := validator.Validate(context.Background(), "NYAR20", 30000)
	require.NoError(t, err)
	require.EqualValues(t, 2000, outcome.Discount)
}

func TestValidatePercentageDiscountRoundsHalfUp(t *testing.T) {
	coupon := activeCoupon()
	coupon.Value = 15
	repo := &stubCouponRepository{findByCodeFn: func(context.Context, string) (domain.Coupon, error) {
		return coupon, nil
	}}
	validator := newTestValidator(t, repo)

	// 15% of 1234 is 185.1, rounded to 185; 15% of 1230 is 184.5, rounded up.
	outcome, err := validator.Validate(context.Background(), "NYAR20", 1234)
	require.NoError(t, err)
	require.EqualValues(t, 185, outcome.Discount)

	outcome, err = validator.Validate(context.Background(), "NYAR20", 1230)
	require.NoError(t, err)
	require.EqualValues(t, 185, outcome.Discount)
}

func TestValidateFixedDiscountNeverExceedsSubtotal(t *testing.T) {
	coupon := activeCoupon()
	coupon.Type = domain.DiscountFixed
	coupon.Value = 5000
	repo := &stubCouponRepository{findByCodeFn: func(context.Context, string) (domain.Coupon, error) {
		return coupon, nil
	}}
	validator := newTestValidator(t, repo)

	outcome, err := validator.Validate(context.Background(), "NYAR20", 3000)
	require.NoError(t, err)
	require.EqualValues(t, 3000, outcome.Discount)
}

func TestValidateOpenEndedValidityWindow(t *testing.T) {
	coupon := activeCoupon()
	coupon.ValidFrom = nil
	coupon.ValidUntil = nil
	repo := &stubCouponRepository{findByCodeFn: func(context.Context, string) (domain.Coupon, error) {
		return coupon, nil
	}}
	validator := newTestValidator(t, repo)

	outcome, err := validator.Validate(context.Background(), "NYAR20", 10000)
	require.NoError(t, err)
	require.EqualValues(t, 2000, outcome.Discount)
}
