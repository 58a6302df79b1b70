package service

import (
	"time"

	"github.com/Pentico/subscription-service/internal/domain"
)

// ResolveExisting decides whether a requested plan change is a brand-new
// subscription or an update to one the account already holds.
//
// Plans with AllowMultiple always get a new subscription, even when an
// identical active one exists. Otherwise the account may hold at most one
// active subscription among the non-multiple plans, so the first active
// subscription referencing such a plan (in the account's stored order) is
// returned for in-place update. When bad data left more than one active
// non-multiple subscription behind, only the first is reconciled; the
// surplus ones are left untouched rather than silently repaired.
//
// The returned pointer aliases the account's subscription slice so callers
// can mutate the entry in place.
func ResolveExisting(account *domain.Account, newPlan *domain.Plan, oldPlans []domain.Plan, now time.Time) *domain.Subscription {
	if newPlan == nil || newPlan.AllowMultiple {
		return nil
	}

	plansByID := make(map[string]*domain.Plan, len(oldPlans))
	for i := range oldPlans {
		plansByID[oldPlans[i].ID] = &oldPlans[i]
	}

	for i := range account.Subscriptions {
		sub := &account.Subscriptions[i]
		if !sub.IsActive(now) {
			continue
		}
		plan := plansByID[sub.PlanID]
		if plan != nil && !plan.AllowMultiple {
			return sub
		}
	}
	return nil
}
