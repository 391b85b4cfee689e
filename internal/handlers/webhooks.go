package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cszshop/api/internal/payments"
	"github.com/cszshop/api/internal/platform/idempotency"
	"github.com/cszshop/api/internal/platform/requestctx"
	"github.com/cszshop/api/internal/services"
)

const (
	maxWebhookBody       = 256 * 1024
	signatureHeaderName  = "Stripe-Signature"
	webhookEventKeySpace = "webhook-event:"
)

// WebhookHandlers ingests payment provider webhooks. Signature verification
// runs over the raw body before anything is parsed or acted on.
type WebhookHandlers struct {
	verifier *payments.WebhookVerifier
	orders   services.OrderService
	events   idempotency.Store
	eventTTL time.Duration
	clock    func() time.Time
}

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithEventDeduplication records processed event ids in the store so retried
// deliveries are acknowledged without touching the order again. The store is
// best effort; the conditional state transition remains the real guard.
func WithEventDeduplication(store idempotency.Store, ttl time.Duration) WebhookOption {
	return func(h *WebhookHandlers) {
		h.events = store
		if ttl > 0 {
			h.eventTTL = ttl
		}
	}
}

// WithWebhookClock overrides the time source.
func WithWebhookClock(clock func() time.Time) WebhookOption {
	return func(h *WebhookHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(verifier *payments.WebhookVerifier, orders services.OrderService, opts ...WebhookOption) (*WebhookHandlers, error) {
	if verifier == nil {
		return nil, errors.New("webhook handlers require a verifier")
	}
	if orders == nil {
		return nil, errors.New("webhook handlers require an order service")
	}
	h := &WebhookHandlers{
		verifier: verifier,
		orders:   orders,
		eventTTL: idempotency.DefaultTTL,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/webhook/payment", h.handlePaymentWebhook)
}

type webhookAck struct {
	Received bool `json:"received"`
}

type webhookError struct {
	Error string `json:"error"`
}

func (h *WebhookHandlers) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, webhookError{Error: "Webhook Error: empty or oversized payload"})
		return
	}

	event, err := h.verifier.Parse(body, r.Header.Get(signatureHeaderName))
	if err != nil {
		logger.Warn("webhook signature verification failed", zap.Error(err))
		writeJSONResponse(w, http.StatusBadRequest, webhookError{Error: "Webhook Error: " + err.Error()})
		return
	}

	if h.isDuplicate(r, event.ID, logger) {
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	cmd := services.PaymentEventCommand{
		EventID:   event.ID,
		OrderID:   event.OrderID,
		SessionID: event.SessionID,
		PaymentID: event.PaymentID,
	}

	switch event.Kind {
	case payments.EventPaymentConfirmed:
		err = h.orders.HandlePaymentConfirmed(ctx, cmd)
	case payments.EventPaymentFailed:
		err = h.orders.HandlePaymentFailed(ctx, cmd)
	case payments.EventAwaitingPayment:
		logger.Info("payment pending, awaiting settlement",
			zap.String("eventId", event.ID),
			zap.String("orderId", event.OrderID))
	default:
		logger.Debug("ignoring webhook event",
			zap.String("eventId", event.ID),
			zap.String("eventType", event.Type))
	}

	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			// Retrying cannot resolve an unknown order reference, so the
			// delivery is acknowledged and the mismatch logged.
			logger.Warn("webhook references unknown order",
				zap.String("eventId", event.ID),
				zap.String("orderId", event.OrderID))
		} else {
			logger.Error("webhook processing failed",
				zap.String("eventId", event.ID),
				zap.String("orderId", event.OrderID),
				zap.Error(err))
			h.releaseEvent(r, event.ID)
			writeJSONResponse(w, http.StatusInternalServerError, webhookError{Error: "failed to process event"})
			return
		}
	}

	h.completeEvent(r, event.ID)
	writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
}

// isDuplicate reserves the event id. Store failures never block processing.
func (h *WebhookHandlers) isDuplicate(r *http.Request, eventID string, logger *zap.Logger) bool {
	if h.events == nil || eventID == "" {
		return false
	}
	reservation, err := h.events.Reserve(r.Context(), webhookEventKeySpace+eventID, eventID, h.clock(), h.eventTTL)
	if err != nil {
		logger.Warn("webhook event reservation failed", zap.String("eventId", eventID), zap.Error(err))
		return false
	}
	if reservation.State != idempotency.ReservationStateNew {
		logger.Info("duplicate webhook delivery acknowledged", zap.String("eventId", eventID))
		return true
	}
	return false
}

func (h *WebhookHandlers) completeEvent(r *http.Request, eventID string) {
	if h.events == nil || eventID == "" {
		return
	}
	resp := idempotency.Response{Status: http.StatusOK}
	_ = h.events.SaveResponse(r.Context(), webhookEventKeySpace+eventID, eventID, resp, h.clock(), h.eventTTL)
}

func (h *WebhookHandlers) releaseEvent(r *http.Request, eventID string) {
	if h.events == nil || eventID == "" {
		return
	}
	_ = h.events.Release(r.Context(), webhookEventKeySpace+eventID, eventID)
}
