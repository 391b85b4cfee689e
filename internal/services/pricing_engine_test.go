package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cszshop/api/internal/catalog"
	"github.com/cszshop/api/internal/platform/config"
)

type stubCatalogGateway struct {
	lookupFn func(ctx context.Context, productIDs, variantIDs []string) (map[string]catalog.PriceInfo, error)
}

func (s *stubCatalogGateway) PriceLookup(ctx context.Context, productIDs, variantIDs []string) (map[string]catalog.PriceInfo, error) {
	return s.lookupFn(ctx, productIDs, variantIDs)
}

type stubCouponValidator struct {
	validateFn func(ctx context.Context, code string, subtotal int64) (CouponOutcome, error)
}

func (s *stubCouponValidator) Validate(ctx context.Context, code string, subtotal int64) (CouponOutcome, error) {
	return s.validateFn(ctx, code, subtotal)
}

func testPricingConfig() config.PricingConfig {
	return config.PricingConfig{
		VATRatePercent:        27,
		ShippingBaseRate:      1990,
		FreeShippingThreshold: 50000,
		WeightThresholdGrams:  5000,
		SurchargePerKg:        500,
	}
}

func newTestEngine(t *testing.T, gateway CatalogGateway, coupons CouponValidator) *CartPricingEngine {
	t.Helper()
	if coupons == nil {
		coupons = &stubCouponValidator{validateFn: func(context.Context, string, int64) (CouponOutcome, error) {
			return CouponOutcome{}, &CouponRejectionError{Message: couponNotFoundMessage}
		}}
	}
	engine, err := NewCartPricingEngine(CartPricingEngineConfig{
		Catalog: gateway,
		Coupons: coupons,
		Pricing: testPricingConfig(),
	})
	require.NoError(t, err)
	return engine
}

func staticPrices(prices map[string]catalog.PriceInfo) *stubCatalogGateway {
	return &stubCatalogGateway{lookupFn: func(_ context.Context, productIDs, variantIDs []string) (map[string]catalog.PriceInfo, error) {
		out := make(map[string]catalog.PriceInfo)
		for _, id := range append(append([]string(nil), productIDs...), variantIDs...) {
			info, ok := prices[id]
			if !ok {
				return nil, catalog.ErrProductNotFound
			}
			out[id] = info
		}
		return out, nil
	}}
}

func TestComputeTotalsRejectsEmptyCart(t *testing.T) {
	engine := newTestEngine(t, staticPrices(nil), nil)

	_, err := engine.ComputeTotals(context.Background(), PricingCommand{ShippingCountry: "hu"})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestComputeTotalsRejectsInvalidQuantity(t *testing.T) {
	engine := newTestEngine(t, staticPrices(nil), nil)

	_, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 0}},
		ShippingCountry: "hu",
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestComputeTotalsCountryNormalisation(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {UnitPrice: 1000, UnitWeightGrams: 100},
	})
	engine := newTestEngine(t, gateway, nil)
	lines := []CartLine{{ProductID: "prod-1", Quantity: 1}}

	for _, country := range []string{"Magyarország", "magyarorszag", " HUNGARY ", "hu", "HU"} {
		_, err := engine.ComputeTotals(context.Background(), PricingCommand{Lines: lines, ShippingCountry: country})
		require.NoError(t, err, "country %q should be accepted", country)
	}

	_, err := engine.ComputeTotals(context.Background(), PricingCommand{Lines: lines, ShippingCountry: "Austria"})
	require.ErrorIs(t, err, ErrUnsupportedCountry)
}

func TestComputeTotalsMissingProductIsFatal(t *testing.T) {
	engine := newTestEngine(t, staticPrices(map[string]catalog.PriceInfo{}), nil)

	_, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "ghost", Quantity: 1}},
		ShippingCountry: "hu",
	})
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestComputeTotalsAggregatesSubtotalAndWeight(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {Name: "Csavar M8", UnitPrice: 250, UnitWeightGrams: 20},
		"var-2":  {Name: "Anya M8", UnitPrice: 90, UnitWeightGrams: 5},
	})
	engine := newTestEngine(t, gateway, nil)

	result, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines: []CartLine{
			{ProductID: "prod-1", Quantity: 10},
			{VariantID: "var-2", Quantity: 100},
		},
		ShippingCountry: "hu",
	})
	require.NoError(t, err)
	require.EqualValues(t, 250*10+90*100, result.Subtotal)
	require.EqualValues(t, 20*10+5*100, result.TotalWeightGrams)
	require.Len(t, result.Lines, 2)
	require.Equal(t, "Csavar M8", result.Lines[0].Name)
}

func TestComputeTotalsFreeShippingOverThreshold(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {UnitPrice: 52000, UnitWeightGrams: 10000},
	})
	engine := newTestEngine(t, gateway, nil)

	result, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingCountry: "hu",
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, result.ShippingFee)
	require.EqualValues(t, 52000, result.Total)
	// VAT is extracted from the gross total, never added on top.
	require.EqualValues(t, 40945, result.NetAmount)
	require.EqualValues(t, 11055, result.VATAmount)
	require.Equal(t, result.Total, result.NetAmount+result.VATAmount)
}

func TestComputeTotalsWeightSurcharge(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {UnitPrice: 10000, UnitWeightGrams: 8000},
	})
	engine := newTestEngine(t, gateway, nil)

	result, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingCountry: "hu",
	})
	require.NoError(t, err)
	// 1990 base plus 3 started kilograms over the 5 kg threshold.
	require.EqualValues(t, 1990+3*500, result.ShippingFee)
	require.EqualValues(t, 10000+3490, result.Total)
}

func TestComputeTotalsPartialKilogramRoundsUp(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {UnitPrice: 1000, UnitWeightGrams: 5001},
	})
	engine := newTestEngine(t, gateway, nil)

	result, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		ShippingCountry: "hu",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1990+500, result.ShippingFee)
}

func TestComputeTotalsCouponRejectionIsNonFatal(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {UnitPrice: 10000, UnitWeightGrams: 100},
	})
	coupons := &stubCouponValidator{validateFn: func(context.Context, string, int64) (CouponOutcome, error) {
		return CouponOutcome{}, &CouponRejectionError{Message: couponExpiredMessage}
	}}
	engine := newTestEngine(t, gateway, coupons)

	result, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		CouponCode:      "NYAR20",
		ShippingCountry: "hu",
	})
	require.NoError(t, err)
	require.False(t, result.CouponApplied)
	require.Equal(t, couponExpiredMessage, result.CouponError)
	require.EqualValues(t, 0, result.Discount)
	require.EqualValues(t, 10000, result.DiscountedSubtotal)
}

func TestComputeTotalsCouponLookupFailureIsNonFatal(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {UnitPrice: 10000, UnitWeightGrams: 100},
	})
	coupons := &stubCouponValidator{validateFn: func(context.Context, string, int64) (CouponOutcome, error) {
		return CouponOutcome{}, errors.New("backend down")
	}}
	engine := newTestEngine(t, gateway, coupons)

	result, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		CouponCode:      "NYAR20",
		ShippingCountry: "hu",
	})
	require.NoError(t, err)
	require.Equal(t, CouponLookupFailedMessage, result.CouponError)
	require.EqualValues(t, 0, result.Discount)
}

func TestComputeTotalsDiscountClampedToSubtotal(t *testing.T) {
	gateway := staticPrices(map[string]catalog.PriceInfo{
		"prod-1": {UnitPrice: 3000, UnitWeightGrams: 100},
	})
	coupons := &stubCouponValidator{validateFn: func(_ context.Context, _ string, subtotal int64) (CouponOutcome, error) {
		return CouponOutcome{Discount: subtotal + 5000}, nil
	}}
	engine := newTestEngine(t, gateway, coupons)

	result, err := engine.ComputeTotals(context.Background(), PricingCommand{
		Lines:           []CartLine{{ProductID: "prod-1", Quantity: 1}},
		CouponCode:      "MINDENT",
		ShippingCountry: "hu",
	})
	require.NoError(t, err)
	require.True(t, result.CouponApplied)
	require.EqualValues(t, 3000, result.Discount)
	require.EqualValues(t, 0, result.DiscountedSubtotal)
	// A fully discounted cart still pays shipping, and the identity holds.
	require.EqualValues(t, 1990, result.Total)
	require.Equal(t, result.Total, result.NetAmount+result.VATAmount)
}

func TestNetFromGrossIdentity(t *testing.T) {
	for _, gross := range []int64{1, 2, 126, 127, 128, 1990, 3490, 13490, 49999, 50000, 52000, 123457} {
		net := netFromGross(gross, 27)
		vat := gross - net
		require.Equal(t, gross, net+vat)
		require.GreaterOrEqual(t, vat, int64(0))
		require.LessOrEqual(t, vat, gross)
	}
}
