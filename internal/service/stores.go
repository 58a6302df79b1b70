package service

import (
	"context"

	"github.com/Pentico/subscription-service/internal/domain"
)

// AccountStore is the account persistence the lifecycle controller needs.
// Save always writes the whole aggregate, subscriptions included.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByReference(ctx context.Context, reference string) (*domain.Account, error)
	FindByPaymentCustomerID(ctx context.Context, customerID string) (*domain.Account, error)
	Save(ctx context.Context, account *domain.Account) error
}

// PlanStore is the read-only plan catalog access the controller needs.
type PlanStore interface {
	FindByReference(ctx context.Context, reference string) (*domain.Plan, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.Plan, error)
}

// UserStore resolves users for indirect account lookup and renewal
// notifications.
type UserStore interface {
	FindByReference(ctx context.Context, reference string) (*domain.User, error)
	FindByAccountID(ctx context.Context, accountID string) ([]domain.User, error)
}
