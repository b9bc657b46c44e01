package orch

import (
	"context"
	"fmt"
	"log"

	"orderlink/internal/config"
	"orderlink/internal/errs"
	"orderlink/internal/model"
)

type ShipmentResult struct {
	Shipment model.Shipment `json:"shipment"`
	// Warning is set when the order already carried a tracking number; the
	// re-create is allowed (history rows are kept) but flagged for staff.
	Warning string `json:"warning,omitempty"`
}

// CreateShipment runs the admin "create shipment" use case: payment gate,
// duplicate-tracking warning, carrier call, append-only persistence,
// tracking write-back, optional tracking notification.
func (o *Orchestrator) CreateShipment(ctx context.Context, orderID, carrierName string) (ShipmentResult, error) {
	if carrierName == "" {
		carrierName = o.Cfg.DefaultCarrier
	}
	ord, err := o.Store.GetOrder(ctx, orderID)
	if err != nil {
		return ShipmentResult{}, err
	}
	cfg := o.Cfg.Carrier(carrierName)

	// Shipping an unpaid order is only allowed in mock mode (UI testing).
	if cfg.Environment != config.EnvMock && ord.PaymentStatus != model.PaymentPaid {
		return ShipmentResult{}, errs.Validationf("order %s payment is %q, not captured", orderID, ord.PaymentStatus)
	}

	warning := ""
	if ord.TrackingNumber != "" {
		warning = fmt.Sprintf("order already has tracking number %s; creating another shipment", ord.TrackingNumber)
	}

	prov, err := o.Shippers.Get(carrierName)
	if err != nil {
		return ShipmentResult{}, &errs.ValidationError{Msg: err.Error()}
	}
	s, err := prov.CreateShipment(ctx, ord)
	if err != nil {
		log.Printf("create shipment failed order=%s carrier=%s env=%s: %v", orderID, carrierName, cfg.Environment, err)
		return ShipmentResult{}, err
	}

	id, err := o.Store.SaveShipment(ctx, s)
	if err != nil {
		return ShipmentResult{}, err
	}
	s.ID = id
	if err := o.Store.SetOrderTracking(ctx, orderID, s.Barcode, s.TrackingURL); err != nil {
		return ShipmentResult{}, err
	}

	if cfg.AutoSendTracking {
		if nerr := o.Sink.ShipmentCreated(ctx, ord, s); nerr != nil {
			log.Printf("tracking notify failed order=%s: %v", orderID, nerr)
		}
	}
	o.publish("shipment.created", map[string]any{"orderId": orderID, "carrier": carrierName, "barcode": s.Barcode})

	return ShipmentResult{Shipment: s, Warning: warning}, nil
}
