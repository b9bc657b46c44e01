package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderlink/internal/config"
	"orderlink/internal/errs"
	"orderlink/internal/httpx"
	"orderlink/internal/metrics"
	"orderlink/internal/model"
)

const (
	dhlSandboxBase = "https://api-gw-accept.dhlparcel.nl"
	dhlLiveBase    = "https://api-gw.dhlparcel.nl"

	dhlMockPrefix = "JVGLTEST"
)

// DHL creates shipments via the DHL parcel API. Auth is a bearer token.
type DHL struct {
	cfg    config.CarrierConfig
	origin model.Address
	hc     *httpx.Client
}

func NewDHL(cfg config.CarrierConfig, origin model.Address, hc *httpx.Client) *DHL {
	if hc == nil {
		hc = httpx.New(httpx.DefaultTimeout, 0)
	}
	return &DHL{cfg: cfg, origin: origin, hc: hc}
}

func (d *DHL) Name() string { return "dhl" }

func (d *DHL) base() string {
	if d.cfg.BaseURL != "" {
		return d.cfg.BaseURL
	}
	if d.cfg.Environment == config.EnvProduction {
		return dhlLiveBase
	}
	return dhlSandboxBase
}

func (d *DHL) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + d.cfg.APIKey}
}

func (d *DHL) QuoteRates(ctx context.Context, o model.Order) ([]model.Rate, error) {
	if d.cfg.Environment == config.EnvMock {
		return []model.Rate{{Carrier: d.Name(), Name: "DHL Parcel", Amount: 7.50, Currency: "EUR",
			EstimatedDate: time.Now().AddDate(0, 0, 2).Format("2006-01-02")}}, nil
	}
	if d.cfg.APIKey == "" {
		return []model.Rate{}, nil
	}
	payload := map[string]any{
		"Origin":      map[string]string{"Zipcode": d.origin.PostalCode, "Countrycode": d.origin.CountryCode},
		"Destination": map[string]string{"Zipcode": o.ShippingAddress.PostalCode, "Countrycode": o.ShippingAddress.CountryCode},
		"Weight":      o.PackageWeightG(d.cfg.DefaultWeightG),
	}
	status, body, err := d.post(ctx, "rates", d.base()+"/v2/rates", payload)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, rejectedFromBody(d.Name(), status, body)
	}
	var res struct {
		Rates []struct {
			Name         string  `json:"Name"`
			Price        float64 `json:"Price"`
			Currency     string  `json:"Currency"`
			DeliveryDate string  `json:"DeliveryDate"`
		} `json:"Rates"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &errs.ProviderUnavailableError{Provider: d.Name(), Err: fmt.Errorf("unparseable rates response")}
	}
	out := make([]model.Rate, 0, len(res.Rates))
	for _, r := range res.Rates {
		out = append(out, model.Rate{Carrier: d.Name(), Name: r.Name, Amount: r.Price, Currency: r.Currency, EstimatedDate: r.DeliveryDate})
	}
	return out, nil
}

func (d *DHL) CreateShipment(ctx context.Context, o model.Order) (model.Shipment, error) {
	if d.cfg.Environment == config.EnvMock {
		return mockShipment(d.Name(), dhlMockPrefix, o, d.cfg), nil
	}
	if d.cfg.APIKey == "" {
		return model.Shipment{}, errs.Validationf("carrier dhl has no credentials configured")
	}

	dest := o.ShippingAddress
	payload := map[string]any{
		"Shipments": []map[string]any{{
			"Addresses": []map[string]string{
				{
					"AddressType": "02",
					"Name":        d.origin.Name,
					"Street":      d.origin.Street,
					"HouseNr":     d.origin.HouseNumber,
					"Zipcode":     d.origin.PostalCode,
					"City":        d.origin.City,
					"Countrycode": d.origin.CountryCode,
				},
				{
					"AddressType": "01",
					"Name":        dest.Name,
					"Street":      dest.Street,
					"HouseNr":     dest.HouseNumber,
					"Zipcode":     dest.PostalCode,
					"City":        dest.City,
					"Countrycode": dest.CountryCode,
				},
			},
			"Dimension": map[string]int{"Weight": o.PackageWeightG(d.cfg.DefaultWeightG)},
			"Reference": o.ID,
			"LabelType": d.cfg.LabelFormat,
		}},
	}

	status, body, err := d.post(ctx, "create_shipment", d.base()+"/v2/shipment", payload)
	if err != nil {
		return model.Shipment{}, err
	}
	if status >= 400 {
		return model.Shipment{}, rejectedFromBody(d.Name(), status, body)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Shipment{}, &errs.ProviderUnavailableError{Provider: d.Name(), Err: fmt.Errorf("unparseable shipment response")}
	}
	label, err := ExtractLabel(d.Name(), env)
	if err != nil {
		return model.Shipment{}, err
	}

	shipStatus := "created"
	if d.cfg.AutoConfirm {
		status, body, err = d.post(ctx, "confirm_shipment", d.base()+"/v2/shipment/confirm", map[string]string{"Barcode": label.TrackingCode})
		if err != nil {
			return model.Shipment{}, err
		}
		if status >= 400 {
			return model.Shipment{}, rejectedFromBody(d.Name(), status, body)
		}
		shipStatus = "confirmed"
	}

	return model.Shipment{
		OrderID:      o.ID,
		Carrier:      d.Name(),
		Barcode:      label.TrackingCode,
		TrackingURL:  TrackingURL(d.Name(), label.TrackingCode, dest.PostalCode, dest.CountryCode, d.cfg.TrackingLanguage),
		LabelContent: label.Content,
		LabelFormat:  d.cfg.LabelFormat,
		Status:       shipStatus,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (d *DHL) post(ctx context.Context, op, url string, payload any) (int, []byte, error) {
	start := time.Now()
	status, body, err := d.hc.PostJSON(ctx, url, d.headers(), payload)
	outcome := "ok"
	if err != nil || status >= 400 {
		outcome = "error"
	}
	metrics.ProviderCalls.WithLabelValues(d.Name(), op, outcome).Inc()
	metrics.ProviderLatency.WithLabelValues(d.Name(), op).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return 0, nil, &errs.ProviderUnavailableError{Provider: d.Name(), Err: err}
	}
	return status, body, nil
}
