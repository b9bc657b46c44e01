// Package shipping integrates with carrier APIs: rate quoting, shipment
// creation/confirmation, label extraction, and tracking-URL synthesis.
package shipping

import (
	"context"
	"encoding/json"
	"fmt"

	"orderlink/internal/errs"
	"orderlink/internal/model"
)

// Provider is one carrier. A provider without credentials quotes an empty
// rate list (checkout proceeds with other carriers) but fails shipment
// creation outside mock mode.
type Provider interface {
	Name() string
	QuoteRates(ctx context.Context, o model.Order) ([]model.Rate, error)
	CreateShipment(ctx context.Context, o model.Order) (model.Shipment, error)
}

// Registry is a static carrier registry keyed by provider name.
type Registry struct {
	providers map[string]Provider
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

func (r *Registry) Register(p Provider) {
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown carrier: %s", name)
	}
	return p, nil
}

// All returns providers in registration order so rate listings are stable.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.providers[n])
	}
	return out
}

// rejectedFromBody maps a carrier 4xx/5xx to the taxonomy. Carriers answer
// with {Errors: [{ErrorCode, ErrorMsg}]}; all entries are surfaced joined so
// staff see every issue at once.
func rejectedFromBody(provider string, status int, body []byte) error {
	var er struct {
		Errors []struct {
			ErrorCode string `json:"ErrorCode"`
			ErrorMsg  string `json:"ErrorMsg"`
		} `json:"Errors"`
	}
	if err := json.Unmarshal(body, &er); err == nil && len(er.Errors) > 0 {
		issues := make([]errs.Issue, 0, len(er.Errors))
		for _, e := range er.Errors {
			issues = append(issues, errs.Issue{Code: e.ErrorCode, Message: e.ErrorMsg})
		}
		return &errs.ProviderRejectedError{Provider: provider, Status: status, Issues: issues}
	}
	if status >= 500 {
		return &errs.ProviderUnavailableError{Provider: provider, Err: fmt.Errorf("HTTP %d", status)}
	}
	return &errs.ProviderRejectedError{Provider: provider, Status: status}
}
