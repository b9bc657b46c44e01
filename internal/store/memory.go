package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "orderlink/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    orders    map[string]model.Order          // id -> order
    orderIDs  []string                        // insertion order for listing
    intents   map[string]model.PaymentIntent  // providerOrderId -> intent
    shipments map[string][]model.Shipment     // orderId -> rows, append-only
    processed map[string]struct{}             // webhook event ids
}

func NewMemory() *Memory {
    return &Memory{
        orders: map[string]model.Order{},
        intents: map[string]model.PaymentIntent{},
        shipments: map[string][]model.Shipment{},
        processed: map[string]struct{}{},
    }
}

func (m *Memory) CreateOrder(ctx context.Context, o model.Order) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if o.ID == "" { o.ID = uuid.New().String() }
    if o.PaymentStatus == "" { o.PaymentStatus = model.PaymentPending }
    m.orders[o.ID] = o
    m.orderIDs = append(m.orderIDs, o.ID)
    return o.ID, nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return model.Order{}, ErrNotFound }
    return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, cursor string, limit int) ([]model.Order, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    start := 0
    if cursor != "" {
        for i, id := range m.orderIDs {
            if id == cursor { start = i + 1; break }
        }
    }
    out := []model.Order{}
    var next string
    for i := start; i < len(m.orderIDs) && len(out) < limit; i++ {
        out = append(out, m.orders[m.orderIDs[i]])
        next = m.orderIDs[i]
    }
    if start+len(out) >= len(m.orderIDs) { next = "" }
    return out, next, nil
}

func (m *Memory) SetOrderPayment(ctx context.Context, id, status string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return ErrNotFound }
    o.PaymentStatus = status
    m.orders[id] = o
    return nil
}

func (m *Memory) SetOrderTracking(ctx context.Context, id, barcode, trackingURL string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok { return ErrNotFound }
    o.TrackingNumber = barcode
    o.TrackingURL = trackingURL
    m.orders[id] = o
    return nil
}

func (m *Memory) SavePaymentIntent(ctx context.Context, pi model.PaymentIntent) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if pi.CreatedAt.IsZero() { pi.CreatedAt = time.Now().UTC() }
    pi.UpdatedAt = time.Now().UTC()
    m.intents[pi.ProviderOrderID] = pi
    return nil
}

func (m *Memory) GetPaymentIntent(ctx context.Context, providerOrderID string) (model.PaymentIntent, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    pi, ok := m.intents[providerOrderID]
    if !ok { return model.PaymentIntent{}, ErrNotFound }
    return pi, nil
}

func (m *Memory) AdvancePaymentIntent(ctx context.Context, providerOrderID string, next model.IntentStatus) (model.PaymentIntent, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    pi, ok := m.intents[providerOrderID]
    if !ok { return model.PaymentIntent{}, ErrNotFound }
    if pi.Status == next { return pi, nil }
    if !pi.Status.CanAdvanceTo(next) { return pi, ErrInvalidTransition }
    pi.Status = next
    pi.UpdatedAt = time.Now().UTC()
    m.intents[providerOrderID] = pi
    return pi, nil
}

func (m *Memory) SaveShipment(ctx context.Context, s model.Shipment) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if s.ID == "" { s.ID = uuid.New().String() }
    if s.CreatedAt.IsZero() { s.CreatedAt = time.Now().UTC() }
    m.shipments[s.OrderID] = append(m.shipments[s.OrderID], s)
    return s.ID, nil
}

func (m *Memory) GetLatestShipment(ctx context.Context, orderID string) (model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    rows := m.shipments[orderID]
    if len(rows) == 0 { return model.Shipment{}, ErrNotFound }
    latest := rows[0]
    for _, s := range rows[1:] {
        if s.CreatedAt.After(latest.CreatedAt) { latest = s }
    }
    return latest, nil
}

func (m *Memory) ListShipments(ctx context.Context, orderID string) ([]model.Shipment, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    rows := append([]model.Shipment{}, m.shipments[orderID]...)
    sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
    return rows, nil
}

func (m *Memory) MarkWebhookProcessed(ctx context.Context, eventID string) (bool, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.processed[eventID]; ok { return false, nil }
    m.processed[eventID] = struct{}{}
    return true, nil
}
