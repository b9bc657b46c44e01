package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "os"
    "path/filepath"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "orderlink/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Ping verifies connectivity (readiness checks).
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies *.sql files from dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil { return err }
    }
    return nil
}

func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) (string, error) {
    if o.ID == "" { o.ID = uuid.New().String() }
    if o.PaymentStatus == "" { o.PaymentStatus = model.PaymentPending }
    addr, _ := json.Marshal(o.ShippingAddress)
    items, _ := json.Marshal(o.Items)
    _, err := p.db.ExecContext(ctx, `INSERT INTO orders (id, currency, total_amount, subtotal, tax_total, shipping_charge, coupon_discount, shipping_address, items, payment_method, payment_status) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
        o.ID, o.Currency, o.TotalAmount, o.Subtotal, o.TaxTotal, o.ShippingCharge, o.CouponDiscount, addr, items, nullIfEmpty(o.PaymentMethod), o.PaymentStatus)
    if err != nil { return "", err }
    return o.ID, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
    var o model.Order
    var addr, items []byte
    var method, tracking, trackingURL sql.NullString
    err := p.db.QueryRowContext(ctx, `SELECT id, currency, total_amount, subtotal, tax_total, shipping_charge, coupon_discount, shipping_address, items, payment_method, payment_status, tracking_number, tracking_url FROM orders WHERE id=$1`, id).
        Scan(&o.ID, &o.Currency, &o.TotalAmount, &o.Subtotal, &o.TaxTotal, &o.ShippingCharge, &o.CouponDiscount, &addr, &items, &method, &o.PaymentStatus, &tracking, &trackingURL)
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    if err != nil { return model.Order{}, err }
    _ = json.Unmarshal(addr, &o.ShippingAddress)
    _ = json.Unmarshal(items, &o.Items)
    o.PaymentMethod = method.String
    o.TrackingNumber = tracking.String
    o.TrackingURL = trackingURL.String
    return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, cursor string, limit int) ([]model.Order, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id FROM orders WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id FROM orders ORDER BY id LIMIT $1`, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    ids := []string{}
    for rows.Next() {
        var id string
        if err := rows.Scan(&id); err != nil { return nil, "", err }
        ids = append(ids, id)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    out := make([]model.Order, 0, len(ids))
    for _, id := range ids {
        o, err := p.GetOrder(ctx, id)
        if err != nil { return nil, "", err }
        out = append(out, o)
    }
    next := ""
    if len(ids) == limit { next = ids[len(ids)-1] }
    return out, next, nil
}

func (p *Postgres) SetOrderPayment(ctx context.Context, id, status string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET payment_status=$2 WHERE id=$1`, id, status)
    if err != nil { return err }
    return mustAffect(res)
}

func (p *Postgres) SetOrderTracking(ctx context.Context, id, barcode, trackingURL string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE orders SET tracking_number=$2, tracking_url=$3 WHERE id=$1`, id, barcode, trackingURL)
    if err != nil { return err }
    return mustAffect(res)
}

func (p *Postgres) SavePaymentIntent(ctx context.Context, pi model.PaymentIntent) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO payment_intents (provider_order_id, order_id, provider, amount, currency, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,now(),now())
        ON CONFLICT (provider_order_id) DO UPDATE SET amount=EXCLUDED.amount, currency=EXCLUDED.currency, status=EXCLUDED.status, updated_at=now()`,
        pi.ProviderOrderID, pi.OrderID, pi.Provider, pi.Amount, pi.Currency, string(pi.Status))
    return err
}

func (p *Postgres) GetPaymentIntent(ctx context.Context, providerOrderID string) (model.PaymentIntent, error) {
    var pi model.PaymentIntent
    var status string
    err := p.db.QueryRowContext(ctx, `SELECT provider_order_id, order_id, provider, amount, currency, status, created_at, updated_at FROM payment_intents WHERE provider_order_id=$1`, providerOrderID).
        Scan(&pi.ProviderOrderID, &pi.OrderID, &pi.Provider, &pi.Amount, &pi.Currency, &status, &pi.CreatedAt, &pi.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) { return model.PaymentIntent{}, ErrNotFound }
    if err != nil { return model.PaymentIntent{}, err }
    pi.Status = model.IntentStatus(status)
    return pi, nil
}

// AdvancePaymentIntent moves the intent forward inside a transaction with the
// row locked, so concurrent webhook deliveries serialize here.
func (p *Postgres) AdvancePaymentIntent(ctx context.Context, providerOrderID string, next model.IntentStatus) (model.PaymentIntent, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.PaymentIntent{}, err }
    defer func(){ _ = tx.Rollback() }()

    var pi model.PaymentIntent
    var status string
    err = tx.QueryRowContext(ctx, `SELECT provider_order_id, order_id, provider, amount, currency, status, created_at, updated_at FROM payment_intents WHERE provider_order_id=$1 FOR UPDATE`, providerOrderID).
        Scan(&pi.ProviderOrderID, &pi.OrderID, &pi.Provider, &pi.Amount, &pi.Currency, &status, &pi.CreatedAt, &pi.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) { return model.PaymentIntent{}, ErrNotFound }
    if err != nil { return model.PaymentIntent{}, err }
    pi.Status = model.IntentStatus(status)
    if pi.Status == next { return pi, tx.Commit() }
    if !pi.Status.CanAdvanceTo(next) { return pi, ErrInvalidTransition }
    if _, err := tx.ExecContext(ctx, `UPDATE payment_intents SET status=$2, updated_at=now() WHERE provider_order_id=$1`, providerOrderID, string(next)); err != nil {
        return model.PaymentIntent{}, err
    }
    pi.Status = next
    pi.UpdatedAt = time.Now().UTC()
    return pi, tx.Commit()
}

func (p *Postgres) SaveShipment(ctx context.Context, s model.Shipment) (string, error) {
    if s.ID == "" { s.ID = uuid.New().String() }
    if s.CreatedAt.IsZero() { s.CreatedAt = time.Now().UTC() }
    _, err := p.db.ExecContext(ctx, `INSERT INTO shipments (id, order_id, carrier, barcode, tracking_url, label_content, label_format, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
        s.ID, s.OrderID, s.Carrier, s.Barcode, s.TrackingURL, s.LabelContent, s.LabelFormat, s.Status, s.CreatedAt)
    if err != nil { return "", err }
    return s.ID, nil
}

func (p *Postgres) GetLatestShipment(ctx context.Context, orderID string) (model.Shipment, error) {
    var s model.Shipment
    err := p.db.QueryRowContext(ctx, `SELECT id, order_id, carrier, barcode, tracking_url, label_content, label_format, status, created_at FROM shipments WHERE order_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, orderID).
        Scan(&s.ID, &s.OrderID, &s.Carrier, &s.Barcode, &s.TrackingURL, &s.LabelContent, &s.LabelFormat, &s.Status, &s.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) { return model.Shipment{}, ErrNotFound }
    if err != nil { return model.Shipment{}, err }
    return s, nil
}

func (p *Postgres) ListShipments(ctx context.Context, orderID string) ([]model.Shipment, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, order_id, carrier, barcode, tracking_url, label_content, label_format, status, created_at FROM shipments WHERE order_id=$1 ORDER BY created_at DESC, id DESC`, orderID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Shipment{}
    for rows.Next() {
        var s model.Shipment
        if err := rows.Scan(&s.ID, &s.OrderID, &s.Carrier, &s.Barcode, &s.TrackingURL, &s.LabelContent, &s.LabelFormat, &s.Status, &s.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookProcessed(ctx context.Context, eventID string) (bool, error) {
    res, err := p.db.ExecContext(ctx, `INSERT INTO webhook_events (event_id, processed_at) VALUES ($1, now()) ON CONFLICT (event_id) DO NOTHING`, eventID)
    if err != nil { return false, err }
    n, err := res.RowsAffected()
    if err != nil { return false, err }
    return n > 0, nil
}

func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}

func mustAffect(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n == 0 { return ErrNotFound }
    return nil
}
