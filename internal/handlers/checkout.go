package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cszshop/api/internal/catalog"
	"github.com/cszshop/api/internal/domain"
	"github.com/cszshop/api/internal/platform/httpx"
	"github.com/cszshop/api/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

// CheckoutHandlers exposes the storefront checkout and cart endpoints.
type CheckoutHandlers struct {
	pricing      services.PricingEngine
	checkout     services.CheckoutService
	bankTransfer services.BankTransferService
	coupons      services.CouponValidator
}

// NewCheckoutHandlers constructs the checkout handlers.
func NewCheckoutHandlers(pricing services.PricingEngine, checkout services.CheckoutService, bankTransfer services.BankTransferService, coupons services.CouponValidator) *CheckoutHandlers {
	return &CheckoutHandlers{
		pricing:      pricing,
		checkout:     checkout,
		bankTransfer: bankTransfer,
		coupons:      coupons,
	}
}

// Routes registers checkout and cart endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout/calculate", h.calculate)
	r.Post("/checkout/session", h.createSession)
	r.Post("/checkout/bank-transfer", h.createBankTransfer)
	r.Post("/cart/apply-coupon", h.applyCoupon)
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int64  `json:"quantity"`
}

type calculateRequest struct {
	Items           []cartItemRequest `json:"items"`
	CouponCode      string            `json:"couponCode"`
	ShippingCountry string            `json:"shippingCountry"`
}

type pricedItemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type calculateResponse struct {
	Items                 []pricedItemResponse `json:"items"`
	Currency              string               `json:"currency"`
	Subtotal              int64                `json:"subtotal"`
	Discount              int64                `json:"discount"`
	CouponApplied         bool                 `json:"couponApplied"`
	CouponError           string               `json:"couponError,omitempty"`
	DiscountedSubtotal    int64                `json:"discountedSubtotal"`
	TotalWeightGrams      int64                `json:"totalWeightGrams"`
	Shipping              int64                `json:"shipping"`
	FreeShippingThreshold int64                `json:"freeShippingThreshold"`
	Total                 int64                `json:"total"`
	NetAmount             int64                `json:"netAmount"`
	VATAmount             int64                `json:"vatAmount"`
}

type addressRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
}

type createSessionRequest struct {
	Items           []cartItemRequest `json:"items"`
	CouponCode      string            `json:"couponCode"`
	CustomerEmail   string            `json:"customerEmail"`
	ShippingAddress addressRequest    `json:"shippingAddress"`
	BillingAddress  *addressRequest   `json:"billingAddress"`
}

type createSessionResponse struct {
	OrderID     string            `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	URL         string            `json:"url"`
	Pricing     calculateResponse `json:"pricing"`
}

type bankTransferRequest struct {
	Items           []cartItemRequest `json:"items"`
	CouponCode      string            `json:"couponCode"`
	CustomerEmail   string            `json:"customerEmail"`
	ShippingAddress addressRequest    `json:"shippingAddress"`
	BillingAddress  *addressRequest   `json:"billingAddress"`
	PoReference     string            `json:"poReference"`
}

type bankAccountResponse struct {
	AccountHolder string `json:"accountHolder"`
	BankName      string `json:"bankName"`
	IBAN          string `json:"iban"`
	BIC           string `json:"bic"`
}

type bankTransferResponse struct {
	OrderID          string              `json:"orderId"`
	OrderNumber      string              `json:"orderNumber"`
	Total            int64               `json:"total"`
	BankAccount      bankAccountResponse `json:"bankAccount"`
	PaymentReference string              `json:"paymentReference"`
	Pricing          calculateResponse   `json:"pricing"`
}

type applyCouponRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type appliedCouponResponse struct {
	Code           string `json:"code"`
	DiscountType   string `json:"discountType"`
	DiscountValue  int64  `json:"discountValue"`
	DiscountAmount int64  `json:"discountAmount"`
}

type applyCouponResponse struct {
	Valid  bool                   `json:"valid"`
	Error  string                 `json:"error,omitempty"`
	Coupon *appliedCouponResponse `json:"coupon,omitempty"`
}

func (h *CheckoutHandlers) calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req calculateRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	result, err := h.pricing.ComputeTotals(ctx, services.PricingCommand{
		Lines:           cartLines(req.Items),
		CouponCode:      strings.TrimSpace(req.CouponCode),
		ShippingCountry: req.ShippingCountry,
	})
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toCalculateResponse(result))
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createSessionRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	shipping := toAddress(req.ShippingAddress)
	billing := shipping
	if req.BillingAddress != nil {
		billing = toAddress(*req.BillingAddress)
	}

	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = shipping.Email
	}
	if email == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customerEmail is required", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.CreateSession(ctx, services.CreateOrderCommand{
		Lines:           cartLines(req.Items),
		CouponCode:      strings.TrimSpace(req.CouponCode),
		CustomerEmail:   email,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, createSessionResponse{
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		URL:         result.RedirectURL,
		Pricing:     toCalculateResponse(result.Pricing),
	})
}

func (h *CheckoutHandlers) createBankTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bankTransfer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "bank transfer service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req bankTransferRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	shipping := toAddress(req.ShippingAddress)
	billing := shipping
	if req.BillingAddress != nil {
		billing = toAddress(*req.BillingAddress)
	}

	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = shipping.Email
	}
	if email == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customerEmail is required", http.StatusBadRequest))
		return
	}

	result, err := h.bankTransfer.CreateOrder(ctx, services.BankTransferCommand{
		Lines:            cartLines(req.Items),
		CouponCode:       strings.TrimSpace(req.CouponCode),
		CustomerEmail:    email,
		ShippingAddress:  shipping,
		BillingAddress:   billing,
		PurchaseOrderRef: strings.TrimSpace(req.PoReference),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, bankTransferResponse{
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		Total:       result.Pricing.Total,
		BankAccount: bankAccountResponse{
			AccountHolder: result.BankAccount.AccountHolder,
			BankName:      result.BankAccount.BankName,
			IBAN:          result.BankAccount.IBAN,
			BIC:           result.BankAccount.BIC,
		},
		PaymentReference: result.PaymentReference,
		Pricing:          toCalculateResponse(result.Pricing),
	})
}

// applyCoupon pre-validates a coupon for the cart page. Both rejections and
// lookup failures answer 200 with valid=false; the checkout calculation
// re-validates the code authoritatively.
func (h *CheckoutHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req applyCouponRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" || req.Subtotal < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code and a non-negative subtotal are required", http.StatusBadRequest))
		return
	}

	outcome, err := h.coupons.Validate(ctx, code, req.Subtotal)
	var rejection *services.CouponRejectionError
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, applyCouponResponse{
			Valid: true,
			Coupon: &appliedCouponResponse{
				Code:           outcome.Coupon.Code,
				DiscountType:   string(outcome.Coupon.Type),
				DiscountValue:  outcome.Coupon.Value,
				DiscountAmount: outcome.Discount,
			},
		})
	case errors.As(err, &rejection):
		writeJSONResponse(w, http.StatusOK, applyCouponResponse{Valid: false, Error: rejection.Message})
	default:
		writeJSONResponse(w, http.StatusOK, applyCouponResponse{Valid: false, Error: services.CouponLookupFailedMessage})
	}
}

func (h *CheckoutHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func cartLines(items []cartItemRequest) []services.CartLine {
	lines := make([]services.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, services.CartLine{
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
		})
	}
	return lines
}

func toAddress(req addressRequest) domain.Address {
	return domain.Address{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Country:    strings.TrimSpace(req.Country),
		PostalCode: strings.TrimSpace(req.PostalCode),
		City:       strings.TrimSpace(req.City),
		Line1:      strings.TrimSpace(req.Line1),
		Line2:      strings.TrimSpace(req.Line2),
	}
}

func toCalculateResponse(result services.PricingResult) calculateResponse {
	items := make([]pricedItemResponse, 0, len(result.Lines))
	for _, line := range result.Lines {
		items = append(items, pricedItemResponse{
			ID:        line.CatalogID,
			Name:      line.Name,
			Kind:      string(line.Kind),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return calculateResponse{
		Items:                 items,
		Currency:              "HUF",
		Subtotal:              result.Subtotal,
		Discount:              result.Discount,
		CouponApplied:         result.CouponApplied,
		CouponError:           result.CouponError,
		DiscountedSubtotal:    result.DiscountedSubtotal,
		TotalWeightGrams:      result.TotalWeightGrams,
		Shipping:              result.ShippingFee,
		FreeShippingThreshold: result.FreeShippingThreshold,
		Total:                 result.Total,
		NetAmount:             result.NetAmount,
		VATAmount:             result.VATAmount,
	}
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart must contain at least one item", http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "item quantities must be at least 1", http.StatusBadRequest))
	case errors.Is(err, services.ErrUnsupportedCountry):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_country", "shipping is only available within Hungary", http.StatusBadRequest))
	case errors.Is(err, catalog.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "one or more items are no longer available", http.StatusBadRequest))
	case errors.Is(err, catalog.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "product catalog is temporarily unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to calculate checkout totals", http.StatusInternalServerError))
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentProvider):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", "payment provider is temporarily unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrPersistence):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to create the order", http.StatusInternalServerError))
	default:
		writePricingError(ctx, w, err)
	}
}
