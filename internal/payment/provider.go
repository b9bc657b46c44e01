// Package payment integrates with external payment gateways: order-intent
// creation, webhook-driven capture, and webhook signature verification.
package payment

import (
	"context"
	"fmt"

	"orderlink/internal/model"
)

// CheckoutIntent is the result of creating a provider-side order.
type CheckoutIntent struct {
	ProviderOrderID string `json:"providerOrderId"`
	ApprovalURL     string `json:"approvalUrl"`
}

// Provider is one payment gateway. Implementations return the taxonomy in
// errs: ValidationError, ProviderUnavailableError, ProviderRejectedError.
type Provider interface {
	Name() string

	// CreateIntent registers the order with the gateway and returns the
	// provider order id plus the URL the customer approves payment at.
	CreateIntent(ctx context.Context, o model.Order) (CheckoutIntent, error)

	// CaptureIntent collects approved funds. Called only after a verified
	// webhook reports approval. Idempotent: an "already captured" verdict
	// from the provider is success. A declined capture is returned as a
	// PaymentIntent with status declined, not as an error.
	CaptureIntent(ctx context.Context, providerOrderID string) (model.PaymentIntent, error)
}

// Registry is a small static provider registry keyed by name, resolved once
// at orchestrator construction.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider: %s", name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	return out
}
