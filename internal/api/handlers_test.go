package api

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    t.Setenv("CONFIG_PATH", "")
    t.Setenv("DATABASE_URL", "")
    t.Setenv("REDIS_URL", "")
    s, err := NewServer()
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func seedOrderHTTP(t *testing.T, s *Server) string {
    t.Helper()
    body := []byte(`{"orders":[{"currency":"EUR","totalAmount":52.45,"subtotal":42.50,"shippingAddress":{"name":"Jan Jansen","street":"Dorpsstraat","houseNumber":"1","postalCode":"1234AB","city":"Amsterdam","countryCode":"NL"},"items":[{"title":"Widget","quantity":1,"unitPrice":42.50}]}]}`)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader(body))
    req.Header.Set("Content-Type", "application/json")
    s.OrdersHandler(rr, req)
    if rr.Code != http.StatusCreated { t.Fatalf("orders create: got %d: %s", rr.Code, rr.Body.String()) }
    var res struct{ IDs []string `json:"ids"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil || len(res.IDs) == 0 {
        t.Fatalf("decode create response: %v %s", err, rr.Body.String())
    }
    return res.IDs[0]
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestOrdersCreateList(t *testing.T) {
    s := newTestServer(t)
    seedOrderHTTP(t, s)
    rr := httptest.NewRecorder()
    s.OrdersHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/orders?limit=5", nil))
    if rr.Code != 200 { t.Fatalf("orders list: got %d", rr.Code) }
    var res struct{ Items []map[string]any `json:"items"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil || len(res.Items) == 0 {
        t.Fatalf("list body: %v %s", err, rr.Body.String())
    }
}

func TestOrderGetAndRates(t *testing.T) {
    s := newTestServer(t)
    id := seedOrderHTTP(t, s)

    rr := httptest.NewRecorder()
    s.OrderByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/"+id, nil))
    if rr.Code != 200 { t.Fatalf("order get: %d", rr.Code) }

    // mock carriers always quote
    rr = httptest.NewRecorder()
    s.OrderByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/"+id+"/rates", nil))
    if rr.Code != 200 { t.Fatalf("rates: %d", rr.Code) }
    var res struct{ Rates []map[string]any `json:"rates"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil || len(res.Rates) == 0 {
        t.Fatalf("rates body: %v %s", err, rr.Body.String())
    }
}

func TestShipmentCreateAndLabelDownload(t *testing.T) {
    s := newTestServer(t)
    id := seedOrderHTTP(t, s)

    // carriers run in mock mode by default, so an unpaid order ships
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/orders/"+id+"/shipment", bytes.NewReader([]byte(`{}`)))
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Role", "admin")
    s.OrderByIDHandler(rr, req)
    if rr.Code != http.StatusCreated { t.Fatalf("shipment create: %d: %s", rr.Code, rr.Body.String()) }
    var sres struct {
        Shipment struct {
            Barcode string `json:"barcode"`
        } `json:"shipment"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &sres); err != nil || sres.Shipment.Barcode == "" {
        t.Fatalf("shipment body: %v %s", err, rr.Body.String())
    }

    // history
    rr = httptest.NewRecorder()
    s.OrderByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/"+id+"/shipments", nil))
    if rr.Code != 200 { t.Fatalf("shipments list: %d", rr.Code) }

    // label download
    rr = httptest.NewRecorder()
    lreq := httptest.NewRequest(http.MethodGet, "/shipment/label?id="+id, nil)
    lreq.Header.Set("X-Role", "admin")
    s.LabelHandler(rr, lreq)
    if rr.Code != 200 { t.Fatalf("label: %d: %s", rr.Code, rr.Body.String()) }
    if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" { t.Fatalf("content type: %s", ct) }
    cd := rr.Header().Get("Content-Disposition")
    if !bytes.Contains([]byte(cd), []byte(sres.Shipment.Barcode+".pdf")) { t.Fatalf("disposition: %s", cd) }
    if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) { t.Fatalf("label body: %q", rr.Body.Bytes()[:8]) }
}

func TestShipmentCreateRequiresStaff(t *testing.T) {
    s := newTestServer(t)
    id := seedOrderHTTP(t, s)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/orders/"+id+"/shipment", bytes.NewReader([]byte(`{}`)))
    req.Header.Set("X-Role", "customer")
    s.OrderByIDHandler(rr, req)
    if rr.Code != 403 { t.Fatalf("customer shipment create: %d", rr.Code) }
}

func TestPaymentNotifyRejectsMissingHeaders(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/payment/notify", bytes.NewReader([]byte(`{}`)))
    s.PaymentNotifyHandler(rr, req)
    if rr.Code != http.StatusBadRequest { t.Fatalf("unverifiable webhook: %d", rr.Code) }
}

func TestOrderNotFound(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.OrderByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/orders/missing", nil))
    if rr.Code != 404 { t.Fatalf("missing order: %d", rr.Code) }
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
    hdr  http.Header
    buf  bytes.Buffer
    code int
}

func (r *sseRecorder) Header() http.Header { if r.hdr == nil { r.hdr = http.Header{} }; return r.hdr }
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush() {}

func TestEventsStreamSSE(t *testing.T) {
    s := newTestServer(t)
    id := seedOrderHTTP(t, s)

    sseReq := httptest.NewRequest(http.MethodGet, "/v1/admin/events/stream", nil)
    ctx, cancel := context.WithTimeout(context.Background(), time.Second)
    defer cancel()
    sseReq = sseReq.WithContext(ctx)
    sseReq.Header.Set("X-Role", "admin")

    rec := &sseRecorder{}
    done := make(chan struct{})
    go func() {
        s.EventsStreamHandler(rec, sseReq)
        close(done)
    }()

    // Give handler time to subscribe and send heartbeat
    time.Sleep(50 * time.Millisecond)
    // Creating a shipment publishes shipment.created
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/orders/"+id+"/shipment", bytes.NewReader([]byte(`{}`)))
    req.Header.Set("X-Role", "admin")
    s.OrderByIDHandler(rr, req)
    if rr.Code != http.StatusCreated { t.Fatalf("shipment create: %d", rr.Code) }

    deadline := time.Now().Add(500 * time.Millisecond)
    for time.Now().Before(deadline) {
        if bytes.Contains(rec.buf.Bytes(), []byte("event: shipment.created")) {
            break
        }
        time.Sleep(10 * time.Millisecond)
    }
    if !bytes.Contains(rec.buf.Bytes(), []byte("event: shipment.created")) {
        t.Fatalf("SSE did not contain expected event. Body: %s", rec.buf.String())
    }
    cancel()
    select {
    case <-done:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("handler did not exit after cancel")
    }
}
