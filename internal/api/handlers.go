package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "orderlink/internal/buildinfo"
    "orderlink/internal/errs"
    "orderlink/internal/model"
    "orderlink/internal/payment"
    "orderlink/internal/store"
)

// webhookRegistrar is implemented by payment providers that support
// registering a notify URL.
type webhookRegistrar interface {
    RegisterWebhook(ctx context.Context, notifyURL string) (string, error)
}

const maxBodyBytes = 1 << 20

// writeErr maps domain errors onto problem responses.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
    var ve *errs.ValidationError
    var pr *errs.ProviderRejectedError
    var pu *errs.ProviderUnavailableError
    var si *errs.SignatureInvalidError
    var lm *errs.LabelMissingError
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
    case errors.As(err, &ve):
        writeProblem(w, http.StatusBadRequest, "Invalid request", ve.Error(), r.URL.Path)
    case errors.As(err, &si):
        writeProblem(w, http.StatusBadRequest, "Verification failed", si.Error(), r.URL.Path)
    case errors.As(err, &pr):
        writeProblem(w, http.StatusUnprocessableEntity, "Provider rejected request", pr.Error(), r.URL.Path)
    case errors.As(err, &pu):
        writeProblem(w, http.StatusBadGateway, "Provider unavailable", pu.Error(), r.URL.Path)
    case errors.As(err, &lm):
        writeProblem(w, http.StatusNotFound, "Label not available", lm.Error(), r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), r.URL.Path)
    }
}

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            Orders []model.Order `json:"orders"`
        }
        if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if len(req.Orders) == 0 {
            writeProblem(w, http.StatusBadRequest, "Missing orders", "", r.URL.Path)
            return
        }
        ids := make([]string, 0, len(req.Orders))
        for _, o := range req.Orders {
            id, err := s.Store.CreateOrder(r.Context(), o)
            if err != nil {
                writeProblem(w, http.StatusInternalServerError, "Create orders failed", err.Error(), r.URL.Path)
                return
            }
            ids = append(ids, id)
        }
        writeJSON(w, http.StatusCreated, map[string]any{"ids": ids, "created": len(ids)})
    case http.MethodGet:
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListOrders(r.Context(), cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// OrderByIDHandler routes /v1/orders/{id} and its checkout, rates, shipment
// and shipments subresources.
func (s *Server) OrderByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]

    if len(parts) == 1 {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        o, err := s.Store.GetOrder(r.Context(), id)
        if err != nil { writeErr(w, r, err); return }
        writeJSON(w, http.StatusOK, o)
        return
    }

    switch parts[1] {
    case "checkout":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        var req struct {
            Provider string `json:"provider"`
        }
        // body is optional
        if r.Body != nil {
            _ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
        }
        ci, err := s.Orch.StartCheckout(r.Context(), id, req.Provider)
        if err != nil { writeErr(w, r, err); return }
        writeJSON(w, http.StatusCreated, ci)
    case "rates":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        rates, err := s.Orch.QuoteRates(r.Context(), id)
        if err != nil { writeErr(w, r, err); return }
        writeJSON(w, http.StatusOK, map[string]any{"rates": rates})
    case "shipment":
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        p := s.getPrincipal(r)
        if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
        var req struct {
            Carrier string `json:"carrier"`
        }
        if r.Body != nil {
            _ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
        }
        res, err := s.Orch.CreateShipment(r.Context(), id, req.Carrier)
        if err != nil { writeErr(w, r, err); return }
        writeJSON(w, http.StatusCreated, res)
    case "shipments":
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        items, err := s.Store.ListShipments(r.Context(), id)
        if err != nil { writeErr(w, r, err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

// PaymentNotifyHandler handles POST /payment/notify, the inbound payment
// provider webhook. Only a verification failure earns a non-2xx; everything
// else is acknowledged so the provider stops or continues redelivery
// according to the recorded outcome.
func (s *Server) PaymentNotifyHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Read failed", err.Error(), r.URL.Path)
        return
    }
    h := payment.WebhookHeaders{
        TransmissionID:   r.Header.Get("Paypal-Transmission-Id"),
        Signature:        r.Header.Get("Paypal-Transmission-Sig"),
        TransmissionTime: r.Header.Get("Paypal-Transmission-Time"),
        CertURL:          r.Header.Get("Paypal-Cert-Url"),
    }
    out, err := s.Orch.HandleWebhook(r.Context(), h, body)
    if err != nil {
        var si *errs.SignatureInvalidError
        if errors.As(err, &si) {
            writeProblem(w, http.StatusBadRequest, "Verification failed", si.Error(), r.URL.Path)
            return
        }
        if out.Status == "" {
            // store failure before any outcome; redeliver
            writeProblem(w, http.StatusInternalServerError, "Webhook processing failed", err.Error(), r.URL.Path)
            return
        }
        // capture failure: acknowledged, retried on redelivery
    }
    writeJSON(w, http.StatusOK, out)
}

// LabelHandler handles GET /shipment/label?id={orderId} and streams the
// stored label bytes of the order's latest shipment.
func (s *Server) LabelHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
    id := r.URL.Query().Get("id")
    if id == "" {
        writeProblem(w, http.StatusBadRequest, "Missing id", "", r.URL.Path)
        return
    }
    lbl, err := s.Orch.StreamLabel(r.Context(), id)
    if err != nil { writeErr(w, r, err); return }
    w.Header().Set("Content-Type", lbl.MimeType)
    w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", lbl.Filename))
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(lbl.Content)
}

// WebhookRegisterHandler handles POST /v1/admin/payment/webhooks: registers
// the service's notify URL with the payment provider.
func (s *Server) WebhookRegisterHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    var req struct {
        Provider  string `json:"provider"`
        NotifyURL string `json:"notifyUrl"`
    }
    if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.NotifyURL == "" {
        writeProblem(w, http.StatusBadRequest, "Missing notifyUrl", "", r.URL.Path)
        return
    }
    if req.Provider == "" { req.Provider = "paypal" }
    prov, err := s.Orch.Payments.Get(req.Provider)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Unknown provider", err.Error(), r.URL.Path)
        return
    }
    registrar, ok := prov.(webhookRegistrar)
    if !ok {
        writeProblem(w, http.StatusBadRequest, "Unsupported provider", req.Provider+" cannot register webhooks", r.URL.Path)
        return
    }
    whID, err := registrar.RegisterWebhook(r.Context(), req.NotifyURL)
    if err != nil { writeErr(w, r, err); return }
    writeJSON(w, http.StatusCreated, map[string]string{"webhookId": whID})
}

// EventsStreamHandler handles GET /v1/admin/events/stream (SSE).
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.IsStaff() { writeProblem(w, 403, "Forbidden", "staff or admin required", r.URL.Path); return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(eventsTopic)
    defer s.Broker.Unsubscribe(eventsTopic, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
