package orch

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"math/big"
	"strings"
	"testing"
	"time"

	"orderlink/internal/config"
	"orderlink/internal/errs"
	"orderlink/internal/model"
	"orderlink/internal/payment"
	"orderlink/internal/shipping"
	"orderlink/internal/store"
)

// fakePay is a scriptable payment provider.
type fakePay struct {
	captures int
	result   model.PaymentIntent
	err      error
}

func (f *fakePay) Name() string { return "paypal" }

func (f *fakePay) CreateIntent(ctx context.Context, o model.Order) (payment.CheckoutIntent, error) {
	if len(o.Items) == 0 {
		return payment.CheckoutIntent{}, errs.Validationf("order %s has no items", o.ID)
	}
	return payment.CheckoutIntent{ProviderOrderID: "PP-1", ApprovalURL: "https://pay.example/approve/PP-1"}, nil
}

func (f *fakePay) CaptureIntent(ctx context.Context, providerOrderID string) (model.PaymentIntent, error) {
	f.captures++
	if f.err != nil {
		return model.PaymentIntent{}, f.err
	}
	r := f.result
	r.ProviderOrderID = providerOrderID
	return r, nil
}

// fakeShip records CreateShipment calls.
type fakeShip struct {
	name  string
	calls int
	err   error
}

func (f *fakeShip) Name() string { return f.name }

func (f *fakeShip) QuoteRates(ctx context.Context, o model.Order) ([]model.Rate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Rate{{Carrier: f.name, Name: "Standard", Amount: 6.95, Currency: "EUR"}}, nil
}

func (f *fakeShip) CreateShipment(ctx context.Context, o model.Order) (model.Shipment, error) {
	f.calls++
	if f.err != nil {
		return model.Shipment{}, f.err
	}
	return model.Shipment{
		OrderID:      o.ID,
		Carrier:      f.name,
		Barcode:      fmt.Sprintf("3S-%s-%d", o.ID, f.calls),
		TrackingURL:  "https://track.example/" + o.ID,
		LabelContent: []byte("%PDF-1.4 test"),
		LabelFormat:  model.LabelFormatPDF,
		Status:       "created",
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func testConfig(carrierEnv string) *config.Config {
	return &config.Config{
		PayPal:         config.PayPalConfig{Environment: config.EnvSandbox, WebhookID: "WH-1", MerchantID: "M-1"},
		DefaultCarrier: "postnl",
		Carriers: map[string]config.CarrierConfig{
			"postnl": {Environment: carrierEnv, LabelFormat: model.LabelFormatPDF, DefaultWeightG: 1000, TrackingLanguage: "en", AutoSendTracking: true},
		},
	}
}

type env struct {
	orch   *Orchestrator
	store  *store.Memory
	pay    *fakePay
	ship   *fakeShip
	key    *rsa.PrivateKey
	events []string
}

func newEnv(t *testing.T, carrierEnv string) *env {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "orch-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	e := &env{
		store: store.NewMemory(),
		pay:   &fakePay{result: model.PaymentIntent{Status: model.IntentCaptured, Amount: 52.45, Currency: "EUR"}},
		ship:  &fakeShip{name: "postnl"},
		key:   key,
	}
	pays := payment.NewRegistry()
	pays.Register(e.pay)
	ships := shipping.NewRegistry()
	ships.Register(e.ship)
	v := payment.NewVerifier("WH-1", "M-1", func(ctx context.Context, certURL string) ([]byte, error) {
		return certPEM, nil
	})
	e.orch = New(e.store, pays, ships, v, nil, testConfig(carrierEnv))
	e.orch.Publish = func(eventType string, data map[string]any) {
		e.events = append(e.events, eventType)
	}
	return e
}

func (e *env) seedOrder(t *testing.T) string {
	t.Helper()
	id, err := e.store.CreateOrder(context.Background(), model.Order{
		Currency:    "EUR",
		TotalAmount: 52.45,
		ShippingAddress: model.Address{
			Name: "Jan Jansen", PostalCode: "1234AB", CountryCode: "NL",
		},
		Items: []model.OrderItem{{Title: "Widget", Quantity: 1, UnitPrice: 42.50}},
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return id
}

func (e *env) signedWebhook(t *testing.T, eventID string, body []byte) (payment.WebhookHeaders, []byte) {
	t.Helper()
	h := payment.WebhookHeaders{
		TransmissionID:   "tx-" + eventID,
		TransmissionTime: "2026-01-02T03:04:05Z",
		CertURL:          "https://certs.example/cert.pem",
	}
	signed := fmt.Sprintf("%s|%s|%s|%d", h.TransmissionID, h.TransmissionTime, "WH-1", crc32.ChecksumIEEE(body))
	digest := sha256.Sum256([]byte(signed))
	sig, err := rsa.SignPKCS1v15(rand.Reader, e.key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h.Signature = base64.StdEncoding.EncodeToString(sig)
	return h, body
}

func approvalBody(eventID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"PP-1","intent":"CAPTURE","status":"APPROVED"}}`, eventID))
}

func TestStartCheckout(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	ci, err := e.orch.StartCheckout(context.Background(), id, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if ci.ProviderOrderID != "PP-1" || !strings.Contains(ci.ApprovalURL, "approve") {
		t.Fatalf("intent: %+v", ci)
	}
	pi, err := e.store.GetPaymentIntent(context.Background(), "PP-1")
	if err != nil {
		t.Fatalf("intent not persisted: %v", err)
	}
	if pi.OrderID != id || pi.Status != model.IntentCreated {
		t.Fatalf("persisted intent: %+v", pi)
	}
}

func TestWebhookCapturesAndMarksPaid(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	if _, err := e.orch.StartCheckout(context.Background(), id, ""); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	h, body := e.signedWebhook(t, "evt-1", approvalBody("evt-1"))
	out, err := e.orch.HandleWebhook(context.Background(), h, body)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if out.Status != WebhookCaptured || out.OrderID != id {
		t.Fatalf("outcome: %+v", out)
	}
	o, _ := e.store.GetOrder(context.Background(), id)
	if o.PaymentStatus != model.PaymentPaid {
		t.Fatalf("order payment status: %s", o.PaymentStatus)
	}
	pi, _ := e.store.GetPaymentIntent(context.Background(), "PP-1")
	if pi.Status != model.IntentCaptured {
		t.Fatalf("intent status: %s", pi.Status)
	}
	if e.pay.captures != 1 {
		t.Fatalf("captures: %d", e.pay.captures)
	}
	if len(e.events) == 0 || e.events[0] != "payment.captured" {
		t.Fatalf("events: %v", e.events)
	}
}

func TestWebhookDuplicateDeliveryNotRecaptured(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	if _, err := e.orch.StartCheckout(context.Background(), id, ""); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	h, body := e.signedWebhook(t, "evt-1", approvalBody("evt-1"))
	if _, err := e.orch.HandleWebhook(context.Background(), h, body); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	out, err := e.orch.HandleWebhook(context.Background(), h, body)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if out.Status != WebhookDuplicate {
		t.Fatalf("outcome: %+v", out)
	}
	if e.pay.captures != 1 {
		t.Fatalf("duplicate delivery re-captured: %d calls", e.pay.captures)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	if _, err := e.orch.StartCheckout(context.Background(), id, ""); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	h, body := e.signedWebhook(t, "evt-1", approvalBody("evt-1"))
	body = append(body, ' ') // invalidates crc
	_, err := e.orch.HandleWebhook(context.Background(), h, body)
	var si *errs.SignatureInvalidError
	if !errors.As(err, &si) {
		t.Fatalf("got %v, want SignatureInvalidError", err)
	}
	if e.pay.captures != 0 {
		t.Fatal("capture must not run on an unverified payload")
	}
	o, _ := e.store.GetOrder(context.Background(), id)
	if o.PaymentStatus != model.PaymentPending {
		t.Fatalf("order mutated by unverified webhook: %s", o.PaymentStatus)
	}
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	body := []byte(`{"id":"evt-2","event_type":"PAYMENT.CAPTURE.REFUNDED","resource":{"id":"PP-1"}}`)
	h, body := e.signedWebhook(t, "evt-2", body)
	out, err := e.orch.HandleWebhook(context.Background(), h, body)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if out.Status != WebhookIgnored {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestWebhookDeclinedMarksOrder(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	if _, err := e.orch.StartCheckout(context.Background(), id, ""); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	e.pay.result = model.PaymentIntent{Status: model.IntentDeclined}

	h, body := e.signedWebhook(t, "evt-3", approvalBody("evt-3"))
	out, err := e.orch.HandleWebhook(context.Background(), h, body)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if out.Status != WebhookDeclined {
		t.Fatalf("outcome: %+v", out)
	}
	o, _ := e.store.GetOrder(context.Background(), id)
	if o.PaymentStatus != model.PaymentDeclined {
		t.Fatalf("order payment status: %s", o.PaymentStatus)
	}
}

func TestCreateShipmentRequiresPayment(t *testing.T) {
	e := newEnv(t, config.EnvSandbox)
	id := e.seedOrder(t)
	_, err := e.orch.CreateShipment(context.Background(), id, "")
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("unpaid order outside mock: got %v", err)
	}
	if e.ship.calls != 0 {
		t.Fatal("carrier called for unpaid order")
	}
}

func TestCreateShipmentMockAllowsUnpaid(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	res, err := e.orch.CreateShipment(context.Background(), id, "")
	if err != nil {
		t.Fatalf("mock shipment: %v", err)
	}
	if res.Warning != "" {
		t.Fatalf("unexpected warning: %s", res.Warning)
	}
	o, _ := e.store.GetOrder(context.Background(), id)
	if o.TrackingNumber != res.Shipment.Barcode {
		t.Fatalf("tracking not written back: %q vs %q", o.TrackingNumber, res.Shipment.Barcode)
	}
	if len(e.events) == 0 || e.events[len(e.events)-1] != "shipment.created" {
		t.Fatalf("events: %v", e.events)
	}
}

func TestCreateShipmentDuplicateWarnsButCreates(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	if _, err := e.orch.CreateShipment(context.Background(), id, ""); err != nil {
		t.Fatalf("first shipment: %v", err)
	}
	res, err := e.orch.CreateShipment(context.Background(), id, "")
	if err != nil {
		t.Fatalf("second shipment must still be created: %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected duplicate-tracking warning")
	}
	rows, _ := e.store.ListShipments(context.Background(), id)
	if len(rows) != 2 {
		t.Fatalf("history rows: %d", len(rows))
	}
}

func TestQuoteRatesSkipsFailingCarrier(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	broken := &fakeShip{name: "dhl", err: &errs.ProviderUnavailableError{Provider: "dhl", Err: errors.New("timeout")}}
	e.orch.Shippers.Register(broken)

	rates, err := e.orch.QuoteRates(context.Background(), id)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(rates) != 1 || rates[0].Carrier != "postnl" {
		t.Fatalf("rates: %+v", rates)
	}
}

func TestStreamLabel(t *testing.T) {
	e := newEnv(t, config.EnvMock)
	id := e.seedOrder(t)
	if _, err := e.orch.CreateShipment(context.Background(), id, ""); err != nil {
		t.Fatalf("shipment: %v", err)
	}
	lbl, err := e.orch.StreamLabel(context.Background(), id)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if lbl.MimeType != "application/pdf" || !strings.HasSuffix(lbl.Filename, ".pdf") {
		t.Fatalf("label meta: %+v", lbl)
	}
	if _, err := e.orch.StreamLabel(context.Background(), "missing"); err != store.ErrNotFound {
		t.Fatalf("missing label: %v", err)
	}
}
