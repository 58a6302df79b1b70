// Package payment abstracts the external payment provider. The lifecycle
// controller only ever talks to the Provider interface; everything
// provider-shaped (customer records, webhook payloads, signatures) stays
// inside the adapter implementations.
package payment

import (
	"context"
	"net/http"

	"github.com/Pentico/subscription-service/internal/domain"
)

// Provider is the contract the subscription lifecycle needs from the
// external billing system.
type Provider interface {
	// CreateOrUpdateSubscription creates a provider-side subscription, or
	// updates the existing one when params.ExistingSubscription carries a
	// provider subscription id.
	CreateOrUpdateSubscription(ctx context.Context, params CreateOrUpdateParams) (*CreateOrUpdateResult, error)
	// UpdateSubscription pushes changed billing/plan fields to the provider.
	UpdateSubscription(ctx context.Context, params UpdateParams) error
	// DeleteSubscription cancels the provider-side subscription.
	DeleteSubscription(ctx context.Context, sub *domain.Subscription) error
	// ReceiveRenewSubscription parses an inbound renewal webhook request.
	ReceiveRenewSubscription(r *http.Request) (*RenewNotification, error)
}

// Payment carries the payment credentials from the create/update request body.
type Payment struct {
	Token         string
	PaymentMethod string
}

// CreateOrUpdateParams is the input for CreateOrUpdateSubscription.
type CreateOrUpdateParams struct {
	User                 *domain.User
	Account              *domain.Account
	ExistingSubscription *domain.Subscription
	NewSubscription      *domain.Subscription
	Payment              Payment
}

// CreateOrUpdateResult reports what the provider did and the identifiers it
// assigned. Identifiers are empty when the adapter does not track them.
type CreateOrUpdateResult struct {
	IsNew                 bool
	PaymentCustomerID     string
	PaymentSubscriptionID string
}

// UpdateParams is the input for UpdateSubscription.
type UpdateParams struct {
	User         *domain.User
	Account      *domain.Account
	Subscription *domain.Subscription
	Payment      Payment
}

// RenewNotification is the parsed content of an inbound renewal webhook.
type RenewNotification struct {
	PaymentCustomerID      string
	PaymentSubscriptionIDs []string
	Interval               string
	IntervalCount          int
}

// NoopProvider performs no external calls. It backs PAYMENT_PROVIDER=none
// deployments and migration tooling.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

func (p *NoopProvider) CreateOrUpdateSubscription(ctx context.Context, params CreateOrUpdateParams) (*CreateOrUpdateResult, error) {
	return &CreateOrUpdateResult{IsNew: params.ExistingSubscription == nil}, nil
}

func (p *NoopProvider) UpdateSubscription(ctx context.Context, params UpdateParams) error {
	return nil
}

func (p *NoopProvider) DeleteSubscription(ctx context.Context, sub *domain.Subscription) error {
	return nil
}

func (p *NoopProvider) ReceiveRenewSubscription(r *http.Request) (*RenewNotification, error) {
	return nil, domain.ErrBadRequest("no payment provider configured")
}
