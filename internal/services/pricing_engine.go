package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/platform/config"
)

// CouponLookupFailedMessage is shown when coupon validation itself errors.
const CouponLookupFailedMessage = "Hiba tortent a kupon ellenorzese soran"

// CartPricingEngineConfig wires the pricing engine dependencies.
type CartPricingEngineConfig struct {
	Catalog CatalogGateway
	Coupons CouponValidator
	Pricing config.PricingConfig
	Logger  Logger
}

// CartPricingEngine computes authoritative checkout totals. Amounts are HUF
// without minor units; VAT is extracted from the gross total rather than
// added on top.
type CartPricingEngine struct {
	catalog CatalogGateway
	coupons CouponValidator
	pricing config.PricingConfig
	logger  Logger
}

// NewCartPricingEngine validates dependencies and builds the engine.
func NewCartPricingEngine(cfg CartPricingEngineConfig) (*CartPricingEngine, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("pricing engine requires a catalog gateway")
	}
	if cfg.Coupons == nil {
		return nil, errors.New("pricing engine requires a coupon validator")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CartPricingEngine{
		catalog: cfg.Catalog,
		coupons: cfg.Coupons,
		pricing: cfg.Pricing,
		logger:  logger,
	}, nil
}

// ComputeTotals prices the cart. Coupon problems are reported on the result
// and never abort the calculation; every other failure is fatal.
func (e *CartPricingEngine) ComputeTotals(ctx context.Context, cmd PricingCommand) (PricingResult, error) {
	if len(cmd.Lines) == 0 {
		return PricingResult{}, ErrEmptyCart
	}
	for _, line := range cmd.Lines {
		if line.Quantity < 1 {
			return PricingResult{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, line.Quantity)
		}
	}
	if !isSupportedShippingCountry(cmd.ShippingCountry) {
		return PricingResult{}, fmt.Errorf("%w: %q", ErrUnsupportedCountry, cmd.ShippingCountry)
	}

	var productIDs, variantIDs []string
	for _, line := range cmd.Lines {
		if line.VariantID != "" {
			variantIDs = append(variantIDs, line.VariantID)
		} else {
			productIDs = append(productIDs, line.ProductID)
		}
	}

	prices, err := e.catalog.PriceLookup(ctx, productIDs, variantIDs)
	if err != nil {
		return PricingResult{}, err
	}

	result := PricingResult{
		Lines:                 make([]PricedLine, 0, len(cmd.Lines)),
		FreeShippingThreshold: e.pricing.FreeShippingThreshold,
	}
	for _, line := range cmd.Lines {
		id := line.ProductID
		kind := domain.LineItemProduct
		if line.VariantID != "" {
			id = line.VariantID
			kind = domain.LineItemVariant
		}
		info, ok := prices[id]
		if !ok {
			// The gateway guarantees all-or-nothing, this is a safety net.
			return PricingResult{}, fmt.Errorf("pricing: missing price for %s", id)
		}
		priced := PricedLine{
			CatalogID:       id,
			Name:            info.Name,
			Kind:            kind,
			Quantity:        line.Quantity,
			UnitPrice:       info.UnitPrice,
			UnitWeightGrams: info.UnitWeightGrams,
			LineTotal:       info.UnitPrice * line.Quantity,
		}
		result.Lines = append(result.Lines, priced)
		result.Subtotal += priced.LineTotal
		result.TotalWeightGrams += info.UnitWeightGrams * line.Quantity
	}

	if cmd.CouponCode != "" {
		outcome, err := e.coupons.Validate(ctx, cmd.CouponCode, result.Subtotal)
		var rejection *CouponRejectionError
		switch {
		case err == nil:
			result.Discount = min64(outcome.Discount, result.Subtotal)
			result.CouponApplied = true
		case errors.As(err, &rejection):
			result.CouponError = rejection.Message
		default:
			e.logger(ctx, "pricing.coupon.lookup_failed", map[string]any{
				"code":  cmd.CouponCode,
				"error": err.Error(),
			})
			result.CouponError = CouponLookupFailedMessage
		}
	}

	result.DiscountedSubtotal = result.Subtotal - result.Discount
	result.ShippingFee = e.shippingFee(result.DiscountedSubtotal, result.TotalWeightGrams)
	result.Total = result.DiscountedSubtotal + result.ShippingFee
	result.NetAmount = netFromGross(result.Total, e.pricing.VATRatePercent)
	result.VATAmount = result.Total - result.NetAmount

	return result, nil
}

// shippingFee implements the Hungary-only tariff: free above the threshold,
// otherwise a base rate plus a per-kilogram surcharge for every started
// kilogram above the weight threshold.
func (e *CartPricingEngine) shippingFee(discountedSubtotal, totalWeightGrams int64) int64 {
	if discountedSubtotal >= e.pricing.FreeShippingThreshold {
		return 0
	}
	fee := e.pricing.ShippingBaseRate
	if totalWeightGrams > e.pricing.WeightThresholdGrams {
		excess := totalWeightGrams - e.pricing.WeightThresholdGrams
		extraKg := (excess + 999) / 1000
		fee += extraKg * e.pricing.SurchargePerKg
	}
	return fee
}

// netFromGross extracts the net amount from a gross total using half-up
// rounding. The VAT amount is always the exact remainder so the sum
// reconstructs the gross total.
func netFromGross(gross, ratePercent int64) int64 {
	if gross <= 0 || ratePercent <= 0 {
		return gross
	}
	denom := 100 + ratePercent
	return (gross*100 + denom/2) / denom
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
