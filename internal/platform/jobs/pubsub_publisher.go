// Package jobs contains Pub/Sub backed publishers for asynchronous work
// kicked off by the order flow.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/cszshop/api/internal/services"
)

// PubSubFulfillmentPublisher notifies the fulfillment pipeline when an order
// is paid.
type PubSubFulfillmentPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubFulfillmentPublisher constructs a Pub/Sub backed fulfillment publisher.
func NewPubSubFulfillmentPublisher(topic *pubsub.Topic) (*PubSubFulfillmentPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub fulfillment publisher: topic is required")
	}
	return &PubSubFulfillmentPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// NotifyOrderPaid enqueues a fulfillment message on the configured topic and
// returns the Pub/Sub message id.
func (p *PubSubFulfillmentPublisher) NotifyOrderPaid(ctx context.Context, message services.FulfillmentMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub fulfillment publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal fulfillment message: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "orderNumber", message.OrderNumber)
	setAttr(attrs, "paymentId", message.PaymentID)
	if !message.PaidAt.IsZero() {
		attrs["paidAt"] = message.PaidAt.UTC().Format(time.RFC3339)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish fulfillment message: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
