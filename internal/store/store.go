package store

import (
    "context"
    "errors"

    "orderlink/internal/model"
)

// Store is the persistence interface used by the integration layer.
type Store interface {
    // Orders (owned by the order domain; this layer reads them and writes
    // back payment status and tracking data)
    CreateOrder(ctx context.Context, o model.Order) (string, error)
    GetOrder(ctx context.Context, id string) (model.Order, error)
    ListOrders(ctx context.Context, cursor string, limit int) ([]model.Order, string, error)
    SetOrderPayment(ctx context.Context, id, status string) error
    SetOrderTracking(ctx context.Context, id, barcode, trackingURL string) error

    // Payment intents (keyed by provider order id, forward-only lifecycle)
    SavePaymentIntent(ctx context.Context, pi model.PaymentIntent) error
    GetPaymentIntent(ctx context.Context, providerOrderID string) (model.PaymentIntent, error)
    AdvancePaymentIntent(ctx context.Context, providerOrderID string, next model.IntentStatus) (model.PaymentIntent, error)

    // Shipments (append-only; history preserved across re-creation attempts)
    SaveShipment(ctx context.Context, s model.Shipment) (string, error)
    GetLatestShipment(ctx context.Context, orderID string) (model.Shipment, error)
    ListShipments(ctx context.Context, orderID string) ([]model.Shipment, error)

    // Webhook dedup: records eventID and reports whether this was the first
    // time it was seen.
    MarkWebhookProcessed(ctx context.Context, eventID string) (bool, error)
}

var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a payment intent would move backward
// or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid payment intent transition")
