package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/cszshop/api/internal/domain"
	pfirestore "github.com/cszshop/api/internal/platform/firestore"
)

const ordersCollection = "orders"

type orderLineItemDocument struct {
	CatalogID       string `firestore:"catalogId"`
	Kind            string `firestore:"kind"`
	Name            string `firestore:"name"`
	Quantity        int64  `firestore:"quantity"`
	UnitPrice       int64  `firestore:"unitPrice"`
	UnitWeightGrams int64  `firestore:"unitWeightGrams"`
	LineTotal       int64  `firestore:"lineTotal"`
}

type orderAddressDocument struct {
	Name       string `firestore:"name"`
	Email      string `firestore:"email"`
	Phone      string `firestore:"phone"`
	Country    string `firestore:"country"`
	PostalCode string `firestore:"postalCode"`
	City       string `firestore:"city"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2"`
}

type orderDocument struct {
	OrderNumber      string                  `firestore:"orderNumber"`
	Status           string                  `firestore:"status"`
	PaymentMethod    string                  `firestore:"paymentMethod"`
	Items            []orderLineItemDocument `firestore:"items"`
	Subtotal         int64                   `firestore:"subtotal"`
	Discount         int64                   `firestore:"discount"`
	CouponCode       string                  `firestore:"couponCode,omitempty"`
	PurchaseOrderRef string                  `firestore:"poReference,omitempty"`
	ShippingFee      int64                   `firestore:"shippingFee"`
	Total            int64                   `firestore:"total"`
	NetAmount        int64                   `firestore:"netAmount"`
	VATAmount        int64                   `firestore:"vatAmount"`
	ShippingAddress  orderAddressDocument    `firestore:"shippingAddress"`
	BillingAddress   orderAddressDocument    `firestore:"billingAddress"`
	SessionID        string                  `firestore:"sessionId,omitempty"`
	PaymentID        string                  `firestore:"paymentId,omitempty"`
	PaidAt           *time.Time              `firestore:"paidAt,omitempty"`
	CancelledAt      *time.Time              `firestore:"cancelledAt,omitempty"`
	CreatedAt        time.Time               `firestore:"createdAt"`
	UpdatedAt        time.Time               `firestore:"updatedAt"`
}

// OrderRepository implements repositories.OrderRepository on Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		provider: provider,
		orders:   base,
	}, nil
}

// Insert creates the order document, failing with a conflict when the id is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads the order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// SetSessionID records the PSP checkout session reference on the order.
func (r *OrderRepository) SetSessionID(ctx context.Context, orderID, sessionID string) error {
	_, err := r.orders.Update(ctx, orderID, []firestore.Update{
		{Path: "sessionId", Value: strings.TrimSpace(sessionID)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

// MarkPaid transitions a pending order to paid inside a transaction. The
// update only applies while the lifecycle table still allows the move, which
// makes duplicate and out-of-order webhook deliveries harmless.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) (bool, error) {
	return r.transition(ctx, orderID, domain.OrderStatusPaid, func(doc *orderDocument) {
		doc.PaymentID = strings.TrimSpace(paymentID)
		paid := paidAt.UTC()
		doc.PaidAt = &paid
	})
}

// MarkCancelled transitions a pending order to cancelled inside a transaction.
func (r *OrderRepository) MarkCancelled(ctx context.Context, orderID string, cancelledAt time.Time) (bool, error) {
	return r.transition(ctx, orderID, domain.OrderStatusCancelled, func(doc *orderDocument) {
		cancelled := cancelledAt.UTC()
		doc.CancelledAt = &cancelled
	})
}

func (r *OrderRepository) transition(ctx context.Context, orderID string, target domain.OrderStatus, apply func(*orderDocument)) (bool, error) {
	if r == nil || r.provider == nil {
		return false, errors.New("order repository not initialised")
	}

	applied := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}

		if !domain.CanTransition(domain.OrderStatus(doc.Status), target) {
			applied = false
			return nil
		}

		doc.Status = string(target)
		apply(&doc)
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("orders.transition", err)
	}
	return applied, nil
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderLineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderLineItemDocument{
			CatalogID:       item.CatalogID,
			Kind:            string(item.Kind),
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			UnitWeightGrams: item.UnitWeightGrams,
			LineTotal:       item.LineTotal,
		})
	}
	return orderDocument{
		OrderNumber:      order.OrderNumber,
		Status:           string(order.Status),
		PaymentMethod:    string(order.PaymentMethod),
		Items:            items,
		Subtotal:         order.Subtotal,
		Discount:         order.Discount,
		CouponCode:       order.CouponCode,
		PurchaseOrderRef: order.PurchaseOrderRef,
		ShippingFee:      order.ShippingFee,
		Total:            order.Total,
		NetAmount:        order.NetAmount,
		VATAmount:        order.VATAmount,
		ShippingAddress:  encodeAddress(order.ShippingAddress),
		BillingAddress:   encodeAddress(order.BillingAddress),
		SessionID:        order.SessionID,
		PaymentID:        order.PaymentID,
		PaidAt:           order.PaidAt,
		CancelledAt:      order.CancelledAt,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.LineItem{
			CatalogID:       item.CatalogID,
			Kind:            domain.LineItemKind(item.Kind),
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			UnitWeightGrams: item.UnitWeightGrams,
			LineTotal:       item.LineTotal,
		})
	}
	return domain.Order{
		ID:               id,
		OrderNumber:      doc.OrderNumber,
		Status:           domain.OrderStatus(doc.Status),
		PaymentMethod:    domain.PaymentMethod(doc.PaymentMethod),
		Items:            items,
		Subtotal:         doc.Subtotal,
		Discount:         doc.Discount,
		CouponCode:       doc.CouponCode,
		PurchaseOrderRef: doc.PurchaseOrderRef,
		ShippingFee:      doc.ShippingFee,
		Total:            doc.Total,
		NetAmount:        doc.NetAmount,
		VATAmount:        doc.VATAmount,
		ShippingAddress:  decodeAddress(doc.ShippingAddress),
		BillingAddress:   decodeAddress(doc.BillingAddress),
		SessionID:        doc.SessionID,
		PaymentID:        doc.PaymentID,
		PaidAt:           doc.PaidAt,
		CancelledAt:      doc.CancelledAt,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

func encodeAddress(addr domain.Address) orderAddressDocument {
	return orderAddressDocument{
		Name:       addr.Name,
		Email:      addr.Email,
		Phone:      addr.Phone,
		Country:    addr.Country,
		PostalCode: addr.PostalCode,
		City:       addr.City,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
	}
}

func decodeAddress(doc orderAddressDocument) domain.Address {
	return domain.Address{
		Name:       doc.Name,
		Email:      doc.Email,
		Phone:      doc.Phone,
		Country:    doc.Country,
		PostalCode: doc.PostalCode,
		City:       doc.City,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
	}
}
