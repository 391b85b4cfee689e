package domain

import "time"

// DiscountType selects how a coupon value is interpreted.
type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// Coupon is a storefront discount code. Codes are stored uppercase and
// matched case-insensitively.
type Coupon struct {
	ID                 string
	Code               string
	Type               DiscountType
	Value              int64
	MaximumDiscount    int64
	MinimumOrderAmount int64
	UsageLimit         int64
	UsedCount          int64
	Active             bool
	ValidFrom          *time.Time
	ValidUntil         *time.Time
}
