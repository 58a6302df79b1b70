package domain

import "time"

// Account is the aggregate root for subscriptions: it exclusively owns its
// Subscription entries, and every mutation reads and re-saves the whole
// account document in one operation.
type Account struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Email         string          `json:"email,omitempty"`
	Metadata      AccountMetadata `json:"metadata"`
	Subscriptions []Subscription  `json:"subscriptions"`
	DateCreated   time.Time       `json:"dateCreated"`
	DateUpdated   time.Time       `json:"dateUpdated"`
}

// AccountMetadata links the account to the external payment provider.
type AccountMetadata struct {
	PaymentCustomerID string `json:"paymentCustomerId,omitempty"`
}

// FindSubscription returns the subscription with the given id, or nil.
func (a *Account) FindSubscription(id string) *Subscription {
	for i := range a.Subscriptions {
		if a.Subscriptions[i].ID == id {
			return &a.Subscriptions[i]
		}
	}
	return nil
}

// ActiveSubscriptions returns the account's active subscriptions in
// stored order.
func (a *Account) ActiveSubscriptions(now time.Time) []Subscription {
	var active []Subscription
	for _, sub := range a.Subscriptions {
		if sub.IsActive(now) {
			active = append(active, sub)
		}
	}
	return active
}

// User belongs to exactly one Account (weak reference by id, not ownership).
type User struct {
	ID          string    `json:"id"`
	Reference   string    `json:"reference"`
	Email       string    `json:"email,omitempty"`
	AccountID   string    `json:"account,omitempty"`
	DateCreated time.Time `json:"dateCreated"`
	DateUpdated time.Time `json:"dateUpdated"`
}
