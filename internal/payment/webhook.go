package payment

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"net/http"

	"orderlink/internal/errs"
	"orderlink/internal/httpx"
	"orderlink/internal/metrics"
)

// WebhookHeaders are the four transmission fields the gateway sends with
// every notification.
type WebhookHeaders struct {
	TransmissionID   string
	Signature        string // base64
	TransmissionTime string
	CertURL          string
}

// CertFetcher loads the signing certificate (PEM) from certURL. Anything but
// HTTP 200 must be an error: verification fails closed.
type CertFetcher func(ctx context.Context, certURL string) ([]byte, error)

// HTTPSCertFetcher fetches certificates with the shared transport.
func HTTPSCertFetcher(hc *httpx.Client) CertFetcher {
	return func(ctx context.Context, certURL string) ([]byte, error) {
		status, body, err := hc.Get(ctx, certURL, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("cert fetch returned HTTP %d", status)
		}
		return body, nil
	}
}

// Verifier checks webhook authenticity before any side effect runs. It is a
// pure function of the headers, raw body, webhook id, merchant id, and the
// injected cert fetcher; there is no hidden state, so it unit-tests against
// fixed byte payloads.
type Verifier struct {
	WebhookID  string
	MerchantID string
	Fetch      CertFetcher
}

func NewVerifier(webhookID, merchantID string, fetch CertFetcher) *Verifier {
	return &Verifier{WebhookID: webhookID, MerchantID: merchantID, Fetch: fetch}
}

// Verify returns nil only when the signature over
// transmissionId|transmissionTime|webhookId|crc32(body) validates against the
// certificate's RSA key AND any payee declared in the payload matches the
// configured merchant. Every failure is a *errs.SignatureInvalidError.
func (v *Verifier) Verify(ctx context.Context, h WebhookHeaders, body []byte) error {
	err := v.verify(ctx, h, body)
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	metrics.WebhookVerifications.WithLabelValues(result).Inc()
	return err
}

func (v *Verifier) verify(ctx context.Context, h WebhookHeaders, body []byte) error {
	if h.TransmissionID == "" || h.Signature == "" || h.TransmissionTime == "" || h.CertURL == "" {
		return &errs.SignatureInvalidError{Reason: "missing transmission headers"}
	}

	signed := fmt.Sprintf("%s|%s|%s|%d", h.TransmissionID, h.TransmissionTime, v.WebhookID, crc32.ChecksumIEEE(body))

	certPEM, err := v.Fetch(ctx, h.CertURL)
	if err != nil {
		return &errs.SignatureInvalidError{Reason: "cert fetch failed: " + err.Error()}
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return &errs.SignatureInvalidError{Reason: "cert is not PEM"}
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return &errs.SignatureInvalidError{Reason: "malformed certificate"}
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return &errs.SignatureInvalidError{Reason: "certificate key is not RSA"}
	}

	sig, err := base64.StdEncoding.DecodeString(h.Signature)
	if err != nil {
		return &errs.SignatureInvalidError{Reason: "signature is not base64"}
	}
	digest := sha256.Sum256([]byte(signed))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return &errs.SignatureInvalidError{Reason: "signature mismatch"}
	}

	// Signature holds. A payload declared for another connected account is
	// still rejected: an absent payee passes, a mismatching one never does.
	if payee := declaredPayee(body); payee != "" && payee != v.MerchantID {
		return &errs.SignatureInvalidError{Reason: "payee mismatch"}
	}
	return nil
}

func declaredPayee(body []byte) string {
	var evt struct {
		Resource struct {
			Payee         *ppPayee `json:"payee"`
			PurchaseUnits []struct {
				Payee *ppPayee `json:"payee"`
			} `json:"purchase_units"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return ""
	}
	if evt.Resource.Payee != nil {
		return evt.Resource.Payee.MerchantID
	}
	if len(evt.Resource.PurchaseUnits) > 0 && evt.Resource.PurchaseUnits[0].Payee != nil {
		return evt.Resource.PurchaseUnits[0].Payee.MerchantID
	}
	return ""
}

// Event is the decoded notification body, reduced to the fields capture
// routing needs.
type Event struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID     string `json:"id"`
		Intent string `json:"intent"`
		Status string `json:"status"`
	} `json:"resource"`
}

// ParseEvent decodes a notification body. Unknown fields are ignored so new
// provider event shapes do not break acknowledgement.
func ParseEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("unparseable webhook body: %w", err)
	}
	return e, nil
}
