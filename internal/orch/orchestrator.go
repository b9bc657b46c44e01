// Package orch sequences the integration use cases: build payload, call
// provider, extract result, persist, notify, respond. One path per use case;
// providers never touch the store and the store never calls providers.
package orch

import (
	"context"
	"log"

	"orderlink/internal/config"
	"orderlink/internal/errs"
	"orderlink/internal/model"
	"orderlink/internal/notify"
	"orderlink/internal/payment"
	"orderlink/internal/shipping"
	"orderlink/internal/store"
)

type Orchestrator struct {
	Store    store.Store
	Payments *payment.Registry
	Shippers *shipping.Registry
	Verifier *payment.Verifier
	Sink     notify.Sink
	Cfg      *config.Config

	// Publish, when set, emits an integration event to the admin streams.
	// Fire-and-forget; never blocks the use case.
	Publish func(eventType string, data map[string]any)
}

func New(s store.Store, pays *payment.Registry, ships *shipping.Registry, v *payment.Verifier, sink notify.Sink, cfg *config.Config) *Orchestrator {
	if sink == nil {
		sink = notify.LogSink{}
	}
	return &Orchestrator{Store: s, Payments: pays, Shippers: ships, Verifier: v, Sink: sink, Cfg: cfg}
}

func (o *Orchestrator) publish(eventType string, data map[string]any) {
	if o.Publish != nil {
		o.Publish(eventType, data)
	}
}

// StartCheckout registers the order with the payment provider and records a
// created intent. The customer is redirected to the returned approval URL;
// capture happens later, webhook-driven.
func (o *Orchestrator) StartCheckout(ctx context.Context, orderID, providerName string) (payment.CheckoutIntent, error) {
	if providerName == "" {
		providerName = "paypal"
	}
	ord, err := o.Store.GetOrder(ctx, orderID)
	if err != nil {
		return payment.CheckoutIntent{}, err
	}
	prov, err := o.Payments.Get(providerName)
	if err != nil {
		return payment.CheckoutIntent{}, &errs.ValidationError{Msg: err.Error()}
	}
	ci, err := prov.CreateIntent(ctx, ord)
	if err != nil {
		log.Printf("checkout failed order=%s provider=%s env=%s: %v", orderID, providerName, o.Cfg.PayPal.Environment, err)
		return payment.CheckoutIntent{}, err
	}
	pi := model.PaymentIntent{
		OrderID:         orderID,
		Provider:        providerName,
		ProviderOrderID: ci.ProviderOrderID,
		Amount:          ord.TotalAmount,
		Currency:        ord.Currency,
		Status:          model.IntentCreated,
	}
	if err := o.Store.SavePaymentIntent(ctx, pi); err != nil {
		return payment.CheckoutIntent{}, err
	}
	return ci, nil
}

// QuoteRates aggregates normalized quotes from every registered carrier. A
// carrier failure degrades to an empty contribution; the rest still quote.
func (o *Orchestrator) QuoteRates(ctx context.Context, orderID string) ([]model.Rate, error) {
	ord, err := o.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := []model.Rate{}
	for _, prov := range o.Shippers.All() {
		rates, err := prov.QuoteRates(ctx, ord)
		if err != nil {
			log.Printf("rate quote failed order=%s carrier=%s: %v", orderID, prov.Name(), err)
			continue
		}
		out = append(out, rates...)
	}
	return out, nil
}

// StreamLabel loads the latest shipment for the order and exposes its label
// for download.
func (o *Orchestrator) StreamLabel(ctx context.Context, orderID string) (model.Label, error) {
	s, err := o.Store.GetLatestShipment(ctx, orderID)
	if err != nil {
		return model.Label{}, err
	}
	if len(s.LabelContent) == 0 {
		return model.Label{}, store.ErrNotFound
	}
	return model.Label{
		Content:      s.LabelContent,
		MimeType:     shipping.MimeType(s.LabelFormat),
		Filename:     s.Barcode + "." + lowerExt(s.LabelFormat),
		TrackingCode: s.Barcode,
	}, nil
}

func lowerExt(format string) string {
	if format == model.LabelFormatZPL {
		return "zpl"
	}
	return "pdf"
}
