package api

import (
    "os"
    "strings"

    "orderlink/internal/config"
    "orderlink/internal/httpx"
    "orderlink/internal/notify"
    "orderlink/internal/orch"
    "orderlink/internal/payment"
    "orderlink/internal/shipping"
    "orderlink/internal/store"
)

// eventsTopic is the broker channel carrying the combined admin feed.
const eventsTopic = "integration"

type Server struct {
    Store  store.Store
    Orch   *orch.Orchestrator
    Cfg    *config.Config
    Broker EventBroker
}

// NewServer wires config, store, providers and the orchestrator. If
// DATABASE_URL is unset, uses the in-memory store.
func NewServer() (*Server, error) {
    cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
    if err != nil {
        return nil, err
    }

    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }

    // Broker selection
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }

    hc := httpx.New(httpx.DefaultTimeout, 0)

    pays := payment.NewRegistry()
    pays.Register(payment.NewPayPal(cfg.PayPal, hc))

    ships := shipping.NewRegistry()
    ships.Register(shipping.NewPostNL(cfg.Carrier("postnl"), cfg.Origin, hc))
    ships.Register(shipping.NewDHL(cfg.Carrier("dhl"), cfg.Origin, hc))

    verifier := payment.NewVerifier(cfg.PayPal.WebhookID, cfg.PayPal.MerchantID, payment.HTTPSCertFetcher(hc))

    o := orch.New(s, pays, ships, verifier, notify.LogSink{}, cfg)
    o.Publish = func(eventType string, data map[string]any) {
        broker.Publish(eventsTopic, SSEEvent{Type: eventType, Data: data})
    }

    return &Server{Store: s, Orch: o, Cfg: cfg, Broker: broker}, nil
}
