package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Pentico/subscription-service/internal/domain"
	"github.com/Pentico/subscription-service/pkg/cache"
	"github.com/Pentico/subscription-service/pkg/payment"
)

// AccountLookup names the account either directly by its reference or
// indirectly through a user's account link.
type AccountLookup struct {
	AccountReference string
	UserReference    string
}

// SubscriptionService is the subscription lifecycle controller. Every
// operation resolves the account aggregate, mutates it in memory, calls the
// payment provider where required, and persists the whole aggregate once.
// A provider rejection aborts before persistence; a failed save after a
// successful provider call is surfaced without rolling the provider back.
type SubscriptionService struct {
	accounts AccountStore
	plans    PlanStore
	users    UserStore
	provider payment.Provider
	cache    cache.Provider

	renewWebhookURL string
	validate        *validator.Validate
	httpClient      *http.Client
	log             *logrus.Entry
	now             func() time.Time
}

func NewSubscriptionService(
	accounts AccountStore,
	plans PlanStore,
	users UserStore,
	provider payment.Provider,
	cacheProvider cache.Provider,
	renewWebhookURL string,
) *SubscriptionService {
	return &SubscriptionService{
		accounts:        accounts,
		plans:           plans,
		users:           users,
		provider:        provider,
		cache:           cacheProvider,
		renewWebhookURL: renewWebhookURL,
		validate:        validator.New(),
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		log:             logrus.WithField("component", "subscriptions"),
		now:             time.Now,
	}
}

// List returns the account's subscription collection verbatim.
func (s *SubscriptionService) List(ctx context.Context, lookup AccountLookup) ([]domain.Subscription, error) {
	account, err := s.resolveAccount(ctx, lookup)
	if err != nil {
		return nil, err
	}
	return account.Subscriptions, nil
}

// Read returns a single subscription by id.
func (s *SubscriptionService) Read(ctx context.Context, lookup AccountLookup, subscriptionID string) (*domain.Subscription, error) {
	account, err := s.resolveAccount(ctx, lookup)
	if err != nil {
		return nil, err
	}
	sub := account.FindSubscription(subscriptionID)
	if sub == nil {
		return nil, domain.ErrNotFound("subscription not found")
	}
	return sub, nil
}

// Create starts a subscription to the named plan, or updates the account's
// existing active subscription when the one-non-multiple-per-account rule
// applies. It returns the full updated subscription collection.
//
// ignoreProvider skips the payment provider entirely and always appends a
// fresh local subscription with no provider identifiers. It exists for data
// migration tooling and bypasses billing.
func (s *SubscriptionService) Create(ctx context.Context, lookup AccountLookup, req *domain.CreateSubscriptionRequest, ignoreProvider bool) ([]domain.Subscription, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	account, err := s.resolveAccount(ctx, lookup)
	if err != nil {
		return nil, err
	}

	newPlan, err := s.plans.FindByReference(ctx, req.Plan)
	if err != nil {
		return nil, domain.ErrInternal("failed to look up plan", err)
	}
	if newPlan == nil {
		return nil, domain.ErrValidation("unknown plan: " + req.Plan)
	}

	oldPlans, err := s.loadSubscribedPlans(ctx, account)
	if err != nil {
		return nil, err
	}

	now := s.now()
	existing := ResolveExisting(account, newPlan, oldPlans, now)
	if ignoreProvider {
		existing = nil
	}

	billing := req.Billing
	if billing == "" {
		billing = domain.DefaultBilling
	}

	newSub := domain.Subscription{
		ID:          uuid.New().String(),
		PlanID:      newPlan.ID,
		Billing:     billing,
		DateExpires: domain.DateExpiresAfter(billing, now),
		DateCreated: now,
	}

	if !ignoreProvider {
		result, err := s.provider.CreateOrUpdateSubscription(ctx, payment.CreateOrUpdateParams{
			User:                 s.lookupUser(ctx, lookup),
			Account:              account,
			ExistingSubscription: existing,
			NewSubscription:      &newSub,
			Payment:              payment.Payment{Token: req.Token, PaymentMethod: req.PaymentMethod},
		})
		if err != nil {
			return nil, err
		}
		if result.PaymentCustomerID != "" {
			account.Metadata.PaymentCustomerID = result.PaymentCustomerID
		}
		newSub.Metadata.PaymentSubscriptionID = result.PaymentSubscriptionID
	}

	if req.Email != "" {
		account.Email = req.Email
	}

	if existing != nil {
		existing.PlanID = newPlan.ID
		existing.Billing = billing
		existing.DateExpires = newSub.DateExpires
		existing.Metadata = newSub.Metadata
	} else {
		account.Subscriptions = append(account.Subscriptions, newSub)
	}

	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, domain.ErrPersistence("failed to save account", err)
	}

	s.log.WithFields(logrus.Fields{
		"account": account.Reference,
		"plan":    newPlan.Reference,
		"updated": existing != nil,
	}).Info("subscription created")

	return account.Subscriptions, nil
}

// Update merges the request into an existing subscription after reconciling
// the change with the payment provider. Request fields win over stored
// values; the expiry is recomputed from the effective billing interval.
func (s *SubscriptionService) Update(ctx context.Context, lookup AccountLookup, subscriptionID string, req *domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	account, err := s.resolveAccount(ctx, lookup)
	if err != nil {
		return nil, err
	}
	sub := account.FindSubscription(subscriptionID)
	if sub == nil {
		return nil, domain.ErrNotFound("subscription not found")
	}

	planID := sub.PlanID
	if req.Plan != "" {
		plan, err := s.plans.FindByReference(ctx, req.Plan)
		if err != nil {
			return nil, domain.ErrInternal("failed to look up plan", err)
		}
		if plan == nil {
			return nil, domain.ErrValidation("unknown plan: " + req.Plan)
		}
		planID = plan.ID
	}
	billing := sub.Billing
	if req.Billing != "" {
		billing = req.Billing
	}

	merged := *sub
	merged.PlanID = planID
	merged.Billing = billing

	err = s.provider.UpdateSubscription(ctx, payment.UpdateParams{
		User:         s.lookupUser(ctx, lookup),
		Account:      account,
		Subscription: &merged,
		Payment:      payment.Payment{Token: req.Token},
	})
	if err != nil {
		return nil, err
	}

	sub.PlanID = planID
	sub.Billing = billing
	sub.DateExpires = domain.DateExpiresAfter(billing, s.now())

	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, domain.ErrPersistence("failed to save account", err)
	}
	s.purgeCache(ctx, account.Reference)

	return sub, nil
}

// Stop stops one subscription, or all of them when subscriptionID is empty.
// Provider cancellations run one at a time so the provider never sees two
// concurrent mutations for the same account. Already-stopped subscriptions
// are skipped, not an error. Returns the number stopped in this call.
func (s *SubscriptionService) Stop(ctx context.Context, lookup AccountLookup, subscriptionID string) (int, error) {
	account, err := s.resolveAccount(ctx, lookup)
	if err != nil {
		return 0, err
	}

	stopped := 0
	now := s.now()
	for i := range account.Subscriptions {
		sub := &account.Subscriptions[i]
		if subscriptionID != "" && sub.ID != subscriptionID {
			continue
		}
		if sub.DateStopped != nil {
			continue
		}
		if err := s.provider.DeleteSubscription(ctx, sub); err != nil {
			// In-memory stamps are discarded; provider cancellations that
			// already went through are not rolled back.
			return 0, err
		}
		stampedAt := now
		sub.DateStopped = &stampedAt
		stopped++
	}

	s.purgeCache(ctx, account.Reference)
	if err := s.accounts.Save(ctx, account); err != nil {
		return 0, domain.ErrPersistence("failed to save account", err)
	}

	s.log.WithFields(logrus.Fields{
		"account": account.Reference,
		"stopped": stopped,
	}).Info("subscriptions stopped")

	return stopped, nil
}

// Renew extends the expiry of the subscriptions named in a provider renewal
// notification, persists the account, purges its cache entry, and fires the
// optional outbound webhook. The webhook is fire-and-forget: its outcome
// never reaches the inbound caller. Returns the number of subscriptions
// renewed.
func (s *SubscriptionService) Renew(ctx context.Context, notification *payment.RenewNotification) (int, error) {
	account, err := s.accounts.FindByPaymentCustomerID(ctx, notification.PaymentCustomerID)
	if err != nil {
		return 0, domain.ErrInternal("failed to look up account", err)
	}
	if account == nil {
		return 0, domain.ErrNotFound("no account for payment customer")
	}

	renewIDs := make(map[string]bool, len(notification.PaymentSubscriptionIDs))
	for _, id := range notification.PaymentSubscriptionIDs {
		renewIDs[id] = true
	}

	now := s.now()
	var renewed []domain.Subscription
	for i := range account.Subscriptions {
		sub := &account.Subscriptions[i]
		if !renewIDs[sub.Metadata.PaymentSubscriptionID] {
			continue
		}
		sub.DateExpires = domain.DateExpiresAfter(notification.Interval, now)
		renewed = append(renewed, *sub)
	}

	if err := s.accounts.Save(ctx, account); err != nil {
		return 0, domain.ErrPersistence("failed to save account", err)
	}
	s.purgeCache(ctx, account.Reference)

	go s.postRenewWebhook(*account, renewed, notification.Interval, notification.IntervalCount)

	return len(renewed), nil
}

// resolveAccount loads the account aggregate from either side of the lookup.
func (s *SubscriptionService) resolveAccount(ctx context.Context, lookup AccountLookup) (*domain.Account, error) {
	if lookup.AccountReference != "" {
		account, err := s.accounts.FindByReference(ctx, lookup.AccountReference)
		if err != nil {
			return nil, domain.ErrInternal("failed to look up account", err)
		}
		if account == nil {
			return nil, domain.ErrNotFound("account not found")
		}
		return account, nil
	}

	if lookup.UserReference != "" {
		user, err := s.users.FindByReference(ctx, lookup.UserReference)
		if err != nil {
			return nil, domain.ErrInternal("failed to look up user", err)
		}
		if user == nil {
			return nil, domain.ErrNotFound("user not found")
		}
		account, err := s.accounts.FindByID(ctx, user.AccountID)
		if err != nil {
			return nil, domain.ErrInternal("failed to look up account", err)
		}
		if account == nil {
			return nil, domain.ErrNotFound("account not found")
		}
		return account, nil
	}

	return nil, domain.ErrValidation("account or user reference required")
}

// loadSubscribedPlans loads the plans referenced by the account's existing
// subscriptions, for the resolver.
func (s *SubscriptionService) loadSubscribedPlans(ctx context.Context, account *domain.Account) ([]domain.Plan, error) {
	seen := make(map[string]bool, len(account.Subscriptions))
	var ids []string
	for _, sub := range account.Subscriptions {
		if sub.PlanID != "" && !seen[sub.PlanID] {
			seen[sub.PlanID] = true
			ids = append(ids, sub.PlanID)
		}
	}
	plans, err := s.plans.FindByIDs(ctx, ids)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscribed plans", err)
	}
	return plans, nil
}

// lookupUser resolves the user for provider calls when the request came in
// through the user route family. Missing users are not an error here; the
// provider only uses this for context.
func (s *SubscriptionService) lookupUser(ctx context.Context, lookup AccountLookup) *domain.User {
	if lookup.UserReference == "" {
		return nil
	}
	user, err := s.users.FindByReference(ctx, lookup.UserReference)
	if err != nil {
		return nil
	}
	return user
}

func (s *SubscriptionService) purgeCache(ctx context.Context, accountReference string) {
	if err := s.cache.PurgeContentByKey(ctx, accountReference); err != nil {
		s.log.WithError(err).WithField("account", accountReference).Warn("cache purge failed")
	}
}

// postRenewWebhook notifies the configured outbound webhook about a renewal.
// Failures are logged and never retried.
func (s *SubscriptionService) postRenewWebhook(account domain.Account, subscriptions []domain.Subscription, interval string, intervalCount int) {
	if s.renewWebhookURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := s.users.FindByAccountID(ctx, account.ID)
	if err != nil {
		s.log.WithError(err).Warn("renew webhook: failed to load account users")
	}

	payload, err := json.Marshal(map[string]any{
		"type":          "renew",
		"account":       account,
		"users":         users,
		"subscriptions": subscriptions,
		"interval":      interval,
		"intervalCount": intervalCount,
	})
	if err != nil {
		s.log.WithError(err).Warn("renew webhook: failed to marshal payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.renewWebhookURL, bytes.NewReader(payload))
	if err != nil {
		s.log.WithError(err).Warn("renew webhook: failed to build request")
		return
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.WithError(err).WithField("url", s.renewWebhookURL).Warn("renew webhook failed")
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.log.WithFields(logrus.Fields{
			"url":    s.renewWebhookURL,
			"status": resp.StatusCode,
		}).Warn("renew webhook rejected")
	}
}
