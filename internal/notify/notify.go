// Package notify carries the fire-and-forget side effects dispatched after a
// successful state change. Sink failures are logged by the caller, never
// propagated: a broken mailer must not fail a capture.
package notify

import (
	"context"
	"log"

	"orderlink/internal/model"
)

type Sink interface {
	// PaymentCaptured announces a completed capture (customer confirmation).
	PaymentCaptured(ctx context.Context, o model.Order, pi model.PaymentIntent) error
	// ShipmentCreated announces a new shipment (tracking mail to customer).
	ShipmentCreated(ctx context.Context, o model.Order, s model.Shipment) error
}

// LogSink writes notifications to the process log. Stand-in for a mailer.
type LogSink struct{}

func (LogSink) PaymentCaptured(ctx context.Context, o model.Order, pi model.PaymentIntent) error {
	log.Printf("notify: payment captured order=%s provider=%s amount=%.2f %s", o.ID, pi.Provider, pi.Amount, pi.Currency)
	return nil
}

func (LogSink) ShipmentCreated(ctx context.Context, o model.Order, s model.Shipment) error {
	log.Printf("notify: shipment created order=%s carrier=%s barcode=%s", o.ID, s.Carrier, s.Barcode)
	return nil
}
