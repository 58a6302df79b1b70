package domain

import "time"

// DefaultBilling is the billing interval used when a create request does not
// name one.
const DefaultBilling = "month"

// Subscription is embedded in exactly one Account. It is never physically
// removed; stopping stamps DateStopped and leaves the entry in place.
type Subscription struct {
	ID          string               `json:"id"`
	PlanID      string               `json:"plan"`
	Billing     string               `json:"billing"`
	DateExpires time.Time            `json:"dateExpires"`
	DateStopped *time.Time           `json:"dateStopped,omitempty"`
	Metadata    SubscriptionMetadata `json:"metadata"`
	DateCreated time.Time            `json:"dateCreated"`
}

// SubscriptionMetadata links the subscription to the external payment
// provider's record.
type SubscriptionMetadata struct {
	PaymentSubscriptionID string `json:"paymentSubscriptionId,omitempty"`
}

// IsActive is the single activeness predicate: not stopped and not expired.
// Every place that cares about activeness goes through this.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.DateStopped == nil && s.DateExpires.After(now)
}

// DateExpiresAfter returns the expiry for a billing interval starting at now:
// "year" adds one year, anything else one month.
func DateExpiresAfter(billing string, now time.Time) time.Time {
	if billing == "year" {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}

// CreateSubscriptionRequest is the input for creating (or implicitly
// updating) a subscription. Plan is a plan reference, not an internal id.
type CreateSubscriptionRequest struct {
	Plan          string `json:"plan" validate:"required"`
	Billing       string `json:"billing,omitempty"`
	Email         string `json:"email,omitempty"`
	Token         string `json:"token,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

// UpdateSubscriptionRequest is the input for updating a subscription in
// place. Empty fields are left untouched.
type UpdateSubscriptionRequest struct {
	Plan    string `json:"plan,omitempty"`
	Billing string `json:"billing,omitempty"`
	Token   string `json:"token,omitempty"`
}
