package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/cszshop/api/internal/domain"
	pfirestore "github.com/cszshop/api/internal/platform/firestore"
)

const couponsCollection = "coupons"

type couponDocument struct {
	Code               string     `firestore:"code"`
	Type               string     `firestore:"type"`
	Value              int64      `firestore:"value"`
	MaximumDiscount    int64      `firestore:"maximumDiscount"`
	MinimumOrderAmount int64      `firestore:"minimumOrderAmount"`
	UsageLimit         int64      `firestore:"usageLimit"`
	UsedCount          int64      `firestore:"usedCount"`
	Active             bool       `firestore:"active"`
	ValidFrom          *time.Time `firestore:"validFrom,omitempty"`
	ValidUntil         *time.Time `firestore:"validUntil,omitempty"`
}

// CouponRepository implements repositories.CouponRepository on Firestore.
// Codes are persisted uppercase so lookups stay case-insensitive.
type CouponRepository struct {
	coupons *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		coupons: pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil, nil),
	}, nil
}

// FindByCode resolves a coupon by its normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return domain.Coupon{}, pfirestore.WrapError("coupons.find", errors.New("coupon code is required"))
	}

	docs, err := r.coupons.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("code", "==", normalised).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NewNotFoundError("coupons.find", normalised)
	}

	doc := docs[0]
	return domain.Coupon{
		ID:                 doc.ID,
		Code:               doc.Data.Code,
		Type:               domain.DiscountType(doc.Data.Type),
		Value:              doc.Data.Value,
		MaximumDiscount:    doc.Data.MaximumDiscount,
		MinimumOrderAmount: doc.Data.MinimumOrderAmount,
		UsageLimit:         doc.Data.UsageLimit,
		UsedCount:          doc.Data.UsedCount,
		Active:             doc.Data.Active,
		ValidFrom:          doc.Data.ValidFrom,
		ValidUntil:         doc.Data.ValidUntil,
	}, nil
}
