// Package domain defines the entities shared between services, repositories,
// and handlers. Monetary amounts are HUF without minor units, weights are
// grams.
package domain

import "time"

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransition reports whether an order may move between the two states.
// Only pending orders move.
func CanTransition(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	return from == OrderStatusPending && (to == OrderStatusPaid || to == OrderStatusCancelled)
}

// PaymentMethod identifies how an order is settled.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// LineItemKind distinguishes the two catalog namespaces an item can come from.
type LineItemKind string

const (
	LineItemProduct LineItemKind = "product"
	LineItemVariant LineItemKind = "variant"
)

// LineItem is a priced cart line persisted on the order.
type LineItem struct {
	CatalogID       string
	Kind            LineItemKind
	Name            string
	Quantity        int64
	UnitPrice       int64
	UnitWeightGrams int64
	LineTotal       int64
}

// Address captures the billing or shipping address of an order.
type Address struct {
	Name       string
	Email      string
	Phone      string
	Country    string
	PostalCode string
	City       string
	Line1      string
	Line2      string
}

// Order is the persisted aggregate driven by checkout and payment webhooks.
type Order struct {
	ID               string
	OrderNumber      string
	Status           OrderStatus
	Items            []LineItem
	PaymentMethod    PaymentMethod
	Subtotal         int64
	Discount         int64
	CouponCode       string
	PurchaseOrderRef string
	ShippingFee      int64
	Total            int64
	NetAmount        int64
	VATAmount        int64
	ShippingAddress  Address
	BillingAddress   Address
	SessionID        string
	PaymentID        string
	PaidAt           *time.Time
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
