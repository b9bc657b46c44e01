package orch

import (
	"context"
	"log"

	"orderlink/internal/model"
	"orderlink/internal/payment"
	"orderlink/internal/store"
)

// Webhook handling outcomes. Everything except a verification failure is
// acknowledged with HTTP 200 so the provider stops redelivering.
const (
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
	WebhookCaptured  = "captured"
	WebhookDeclined  = "declined"
	WebhookFailed    = "failed"
)

type WebhookOutcome struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
}

// HandleWebhook verifies, routes, and (for approval events) captures.
// Verification runs strictly first; no side effect happens on an unverified
// payload. Only a verified CHECKOUT.ORDER.APPROVED with intent CAPTURE and
// status APPROVED triggers a capture; every other event is acknowledged and
// ignored to satisfy redelivery semantics.
func (o *Orchestrator) HandleWebhook(ctx context.Context, h payment.WebhookHeaders, body []byte) (WebhookOutcome, error) {
	if err := o.Verifier.Verify(ctx, h, body); err != nil {
		log.Printf("webhook rejected transmission=%s: %v", h.TransmissionID, err)
		return WebhookOutcome{}, err
	}

	evt, err := payment.ParseEvent(body)
	if err != nil {
		// Verified but unparseable: acknowledge, nothing to route.
		log.Printf("webhook unparseable transmission=%s: %v", h.TransmissionID, err)
		return WebhookOutcome{Status: WebhookIgnored}, nil
	}
	if evt.EventType != "CHECKOUT.ORDER.APPROVED" || evt.Resource.Intent != "CAPTURE" || evt.Resource.Status != "APPROVED" {
		return WebhookOutcome{Status: WebhookIgnored}, nil
	}

	pi, err := o.Store.GetPaymentIntent(ctx, evt.Resource.ID)
	if err == store.ErrNotFound {
		// Not an intent this system opened; acknowledge.
		log.Printf("webhook for unknown intent %s; ignoring", evt.Resource.ID)
		return WebhookOutcome{Status: WebhookIgnored}, nil
	}
	if err != nil {
		return WebhookOutcome{}, err
	}

	// Redelivery fast path: an already-terminal intent needs no work. The
	// dedup record is advisory; capture idempotence is the real guard.
	if evt.ID != "" {
		first, err := o.Store.MarkWebhookProcessed(ctx, evt.ID)
		if err != nil {
			return WebhookOutcome{}, err
		}
		if !first && terminal(pi.Status) {
			return WebhookOutcome{Status: WebhookDuplicate, OrderID: pi.OrderID}, nil
		}
	}

	if _, err := o.Store.AdvancePaymentIntent(ctx, evt.Resource.ID, model.IntentApproved); err != nil && err != store.ErrInvalidTransition {
		return WebhookOutcome{}, err
	}

	prov, err := o.Payments.Get(pi.Provider)
	if err != nil {
		return WebhookOutcome{}, err
	}
	captured, err := prov.CaptureIntent(ctx, evt.Resource.ID)
	if err != nil {
		// Logged and surfaced; the caller still acknowledges so the provider
		// redelivers and the capture is retried (idempotently) next time.
		log.Printf("capture failed order=%s provider=%s intent=%s: %v", pi.OrderID, pi.Provider, evt.Resource.ID, err)
		return WebhookOutcome{Status: WebhookFailed, OrderID: pi.OrderID}, err
	}

	next := captured.Status
	if _, err := o.Store.AdvancePaymentIntent(ctx, evt.Resource.ID, next); err != nil && err != store.ErrInvalidTransition {
		return WebhookOutcome{}, err
	}

	switch next {
	case model.IntentCaptured:
		if err := o.Store.SetOrderPayment(ctx, pi.OrderID, model.PaymentPaid); err != nil {
			return WebhookOutcome{}, err
		}
		ord, err := o.Store.GetOrder(ctx, pi.OrderID)
		if err == nil {
			if nerr := o.Sink.PaymentCaptured(ctx, ord, captured); nerr != nil {
				log.Printf("notify failed order=%s: %v", pi.OrderID, nerr)
			}
		}
		o.publish("payment.captured", map[string]any{"orderId": pi.OrderID, "provider": pi.Provider, "amount": captured.Amount})
		return WebhookOutcome{Status: WebhookCaptured, OrderID: pi.OrderID}, nil
	case model.IntentDeclined:
		_ = o.Store.SetOrderPayment(ctx, pi.OrderID, model.PaymentDeclined)
		return WebhookOutcome{Status: WebhookDeclined, OrderID: pi.OrderID}, nil
	default:
		_ = o.Store.SetOrderPayment(ctx, pi.OrderID, model.PaymentFailed)
		return WebhookOutcome{Status: WebhookFailed, OrderID: pi.OrderID}, nil
	}
}

func terminal(s model.IntentStatus) bool {
	return s == model.IntentCaptured || s == model.IntentDeclined || s == model.IntentFailed
}
