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
	postnlSandboxBase = "https://api-sandbox.postnl.nl"
	postnlLiveBase    = "https://api.postnl.nl"

	// Barcode prefix for mock-mode shipments.
	postnlMockPrefix = "3STEST"
)

// PostNL creates shipments via the PostNL shipment API. Auth is a static
// apikey header.
type PostNL struct {
	cfg    config.CarrierConfig
	origin model.Address
	hc     *httpx.Client
}

func NewPostNL(cfg config.CarrierConfig, origin model.Address, hc *httpx.Client) *PostNL {
	if hc == nil {
		hc = httpx.New(httpx.DefaultTimeout, 0)
	}
	return &PostNL{cfg: cfg, origin: origin, hc: hc}
}

func (p *PostNL) Name() string { return "postnl" }

func (p *PostNL) base() string {
	if p.cfg.BaseURL != "" {
		return p.cfg.BaseURL
	}
	if p.cfg.Environment == config.EnvProduction {
		return postnlLiveBase
	}
	return postnlSandboxBase
}

func (p *PostNL) headers() map[string]string {
	return map[string]string{"apikey": p.cfg.APIKey}
}

// QuoteRates returns normalized rates for the order's destination and
// computed weight. Without credentials it returns an empty list, not an
// error, so checkout proceeds with other carriers.
func (p *PostNL) QuoteRates(ctx context.Context, o model.Order) ([]model.Rate, error) {
	if p.cfg.Environment == config.EnvMock {
		return []model.Rate{{Carrier: p.Name(), Name: "Standard", Amount: 6.95, Currency: "EUR",
			EstimatedDate: time.Now().AddDate(0, 0, 1).Format("2006-01-02")}}, nil
	}
	if p.cfg.APIKey == "" {
		return []model.Rate{}, nil
	}
	payload := map[string]any{
		"Origin":      map[string]string{"Zipcode": p.origin.PostalCode, "Countrycode": p.origin.CountryCode},
		"Destination": map[string]string{"Zipcode": o.ShippingAddress.PostalCode, "Countrycode": o.ShippingAddress.CountryCode},
		"Weight":      o.PackageWeightG(p.cfg.DefaultWeightG),
	}
	status, body, err := p.post(ctx, "rates", p.base()+"/v2/rates", payload)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, rejectedFromBody(p.Name(), status, body)
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
		return nil, &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("unparseable rates response")}
	}
	out := make([]model.Rate, 0, len(res.Rates))
	for _, r := range res.Rates {
		out = append(out, model.Rate{Carrier: p.Name(), Name: r.Name, Amount: r.Price, Currency: r.Currency, EstimatedDate: r.DeliveryDate})
	}
	return out, nil
}

// CreateShipment registers the shipment and extracts the label. Mock mode
// synthesizes both locally. With autoConfirm set the confirm call runs after
// a successful create, never before.
func (p *PostNL) CreateShipment(ctx context.Context, o model.Order) (model.Shipment, error) {
	if p.cfg.Environment == config.EnvMock {
		return mockShipment(p.Name(), postnlMockPrefix, o, p.cfg), nil
	}
	if p.cfg.APIKey == "" {
		return model.Shipment{}, errs.Validationf("carrier postnl has no credentials configured")
	}

	dest := o.ShippingAddress
	payload := map[string]any{
		"Customer": map[string]any{
			"Address": map[string]string{
				"AddressType": "02",
				"CompanyName": p.origin.Name,
				"Street":      p.origin.Street,
				"HouseNr":     p.origin.HouseNumber,
				"Zipcode":     p.origin.PostalCode,
				"City":        p.origin.City,
				"Countrycode": p.origin.CountryCode,
			},
		},
		"Shipments": []map[string]any{{
			"Addresses": []map[string]string{{
				"AddressType": "01",
				"Name":        dest.Name,
				"Street":      dest.Street,
				"HouseNr":     dest.HouseNumber,
				"Zipcode":     dest.PostalCode,
				"City":        dest.City,
				"Countrycode": dest.CountryCode,
			}},
			"Dimension":           map[string]int{"Weight": o.PackageWeightG(p.cfg.DefaultWeightG)},
			"ProductCodeDelivery": "3085",
			"Reference":           o.ID,
			"LabelType":           p.cfg.LabelFormat,
		}},
	}

	status, body, err := p.post(ctx, "create_shipment", p.base()+"/v2/shipment", payload)
	if err != nil {
		return model.Shipment{}, err
	}
	if status >= 400 {
		return model.Shipment{}, rejectedFromBody(p.Name(), status, body)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Shipment{}, &errs.ProviderUnavailableError{Provider: p.Name(), Err: fmt.Errorf("unparseable shipment response")}
	}
	label, err := ExtractLabel(p.Name(), env)
	if err != nil {
		return model.Shipment{}, err
	}

	shipStatus := "created"
	if p.cfg.AutoConfirm {
		if err := p.confirm(ctx, label.TrackingCode); err != nil {
			return model.Shipment{}, err
		}
		shipStatus = "confirmed"
	}

	return model.Shipment{
		OrderID:      o.ID,
		Carrier:      p.Name(),
		Barcode:      label.TrackingCode,
		TrackingURL:  TrackingURL(p.Name(), label.TrackingCode, dest.PostalCode, dest.CountryCode, p.cfg.TrackingLanguage),
		LabelContent: label.Content,
		LabelFormat:  p.cfg.LabelFormat,
		Status:       shipStatus,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (p *PostNL) confirm(ctx context.Context, barcode string) error {
	status, body, err := p.post(ctx, "confirm_shipment", p.base()+"/v2/shipment/confirm", map[string]string{"Barcode": barcode})
	if err != nil {
		return err
	}
	if status >= 400 {
		return rejectedFromBody(p.Name(), status, body)
	}
	return nil
}

func (p *PostNL) post(ctx context.Context, op, url string, payload any) (int, []byte, error) {
	start := time.Now()
	status, body, err := p.hc.PostJSON(ctx, url, p.headers(), payload)
	outcome := "ok"
	if err != nil || status >= 400 {
		outcome = "error"
	}
	metrics.ProviderCalls.WithLabelValues(p.Name(), op, outcome).Inc()
	metrics.ProviderLatency.WithLabelValues(p.Name(), op).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return 0, nil, &errs.ProviderUnavailableError{Provider: p.Name(), Err: err}
	}
	return status, body, nil
}
