package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/Pentico/subscription-service/internal/domain"
	"github.com/Pentico/subscription-service/internal/service"
	"github.com/Pentico/subscription-service/pkg/cache"
	"github.com/Pentico/subscription-service/pkg/payment"
)

type stubAccountStore struct {
	accounts map[string]*domain.Account
}

func (s *stubAccountStore) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (s *stubAccountStore) FindByReference(ctx context.Context, reference string) (*domain.Account, error) {
	return s.accounts[reference], nil
}

func (s *stubAccountStore) FindByPaymentCustomerID(ctx context.Context, customerID string) (*domain.Account, error) {
	for _, a := range s.accounts {
		if a.Metadata.PaymentCustomerID == customerID {
			return a, nil
		}
	}
	return nil, nil
}

func (s *stubAccountStore) Save(ctx context.Context, account *domain.Account) error {
	s.accounts[account.Reference] = account
	return nil
}

type stubPlanStore struct {
	plans map[string]*domain.Plan
}

func (s *stubPlanStore) FindByReference(ctx context.Context, reference string) (*domain.Plan, error) {
	return s.plans[reference], nil
}

func (s *stubPlanStore) FindByIDs(ctx context.Context, ids []string) ([]domain.Plan, error) {
	var out []domain.Plan
	for _, p := range s.plans {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, *p)
			}
		}
	}
	return out, nil
}

type stubUserStore struct{}

func (s *stubUserStore) FindByReference(ctx context.Context, reference string) (*domain.User, error) {
	return nil, nil
}

func (s *stubUserStore) FindByAccountID(ctx context.Context, accountID string) ([]domain.User, error) {
	return nil, nil
}

type stubPaymentProvider struct {
	createCalls  int
	notification *payment.RenewNotification
}

func (p *stubPaymentProvider) CreateOrUpdateSubscription(ctx context.Context, params payment.CreateOrUpdateParams) (*payment.CreateOrUpdateResult, error) {
	p.createCalls++
	return &payment.CreateOrUpdateResult{
		IsNew:                 params.ExistingSubscription == nil,
		PaymentCustomerID:     "cus_test",
		PaymentSubscriptionID: "sub_test",
	}, nil
}

func (p *stubPaymentProvider) UpdateSubscription(ctx context.Context, params payment.UpdateParams) error {
	return nil
}

func (p *stubPaymentProvider) DeleteSubscription(ctx context.Context, sub *domain.Subscription) error {
	return nil
}

func (p *stubPaymentProvider) ReceiveRenewSubscription(r *http.Request) (*payment.RenewNotification, error) {
	if p.notification == nil {
		return nil, domain.ErrUnauthorized("bad signature")
	}
	return p.notification, nil
}

func subscriptionRouter(t *testing.T, provider payment.Provider) (*chi.Mux, *stubAccountStore) {
	t.Helper()

	accounts := &stubAccountStore{accounts: map[string]*domain.Account{
		"acme": {
			ID:        "acct-1",
			Reference: "acme",
			Metadata:  domain.AccountMetadata{PaymentCustomerID: "cus_test"},
			Subscriptions: []domain.Subscription{
				{
					ID:          "sub-1",
					PlanID:      "plan-a",
					Billing:     "month",
					DateExpires: time.Now().AddDate(0, 1, 0),
					Metadata:    domain.SubscriptionMetadata{PaymentSubscriptionID: "sub_test"},
				},
			},
		},
	}}
	plans := &stubPlanStore{plans: map[string]*domain.Plan{
		"basic":   {ID: "plan-a", Reference: "basic"},
		"premium": {ID: "plan-b", Reference: "premium"},
	}}

	svc := service.NewSubscriptionService(accounts, plans, &stubUserStore{}, provider, cache.NewNoopProvider(), "")
	h := NewSubscriptionHandler(svc, provider)

	r := chi.NewRouter()
	r.Get("/api/accounts/{accountReference}/subscriptions", h.List)
	r.Post("/api/accounts/{accountReference}/subscriptions", h.Create)
	r.Delete("/api/accounts/{accountReference}/subscriptions", h.Delete)
	r.Get("/api/accounts/{accountReference}/subscriptions/{subscriptionId}", h.Read)
	r.Put("/api/accounts/{accountReference}/subscriptions/{subscriptionId}", h.Update)
	r.Delete("/api/accounts/{accountReference}/subscriptions/{subscriptionId}", h.Delete)
	r.Post("/api/subscriptions/renew", h.Renew)
	return r, accounts
}

func TestSubscriptionHandler_List(t *testing.T) {
	router, _ := subscriptionRouter(t, &stubPaymentProvider{})

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/acme/subscriptions", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var subs []domain.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs, 1)
	require.Equal(t, "sub-1", subs[0].ID)
}

func TestSubscriptionHandler_ListUnknownAccount(t *testing.T) {
	router, _ := subscriptionRouter(t, &stubPaymentProvider{})

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/nobody/subscriptions", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionHandler_ReadUnknownSubscription(t *testing.T) {
	router, _ := subscriptionRouter(t, &stubPaymentProvider{})

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/acme/subscriptions/ghost", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionHandler_CreateMissingPlan(t *testing.T) {
	router, _ := subscriptionRouter(t, &stubPaymentProvider{})

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acme/subscriptions",
		map[string]string{"plan": "no-such-plan"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptionHandler_CreateCallsProvider(t *testing.T) {
	provider := &stubPaymentProvider{}
	router, accounts := subscriptionRouter(t, provider)

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acme/subscriptions",
		map[string]string{"plan": "premium"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, provider.createCalls)
	require.Equal(t, "cus_test", accounts.accounts["acme"].Metadata.PaymentCustomerID)
}

func TestSubscriptionHandler_CreateIgnoresProvider(t *testing.T) {
	provider := &stubPaymentProvider{}
	router, _ := subscriptionRouter(t, provider)

	rec := doJSON(t, router, http.MethodPost,
		"/api/accounts/acme/subscriptions?ignorePaymentProvider",
		map[string]string{"plan": "premium"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, provider.createCalls)
}

func TestSubscriptionHandler_DeleteStopsAll(t *testing.T) {
	router, accounts := subscriptionRouter(t, &stubPaymentProvider{})

	rec := doJSON(t, router, http.MethodDelete, "/api/accounts/acme/subscriptions", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"stopped":1`)
	require.NotNil(t, accounts.accounts["acme"].Subscriptions[0].DateStopped)
}

func TestSubscriptionHandler_RenewBadSignature(t *testing.T) {
	router, _ := subscriptionRouter(t, &stubPaymentProvider{})

	rec := doJSON(t, router, http.MethodPost, "/api/subscriptions/renew", map[string]string{})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubscriptionHandler_Renew(t *testing.T) {
	provider := &stubPaymentProvider{notification: &payment.RenewNotification{
		PaymentCustomerID:      "cus_test",
		PaymentSubscriptionIDs: []string{"sub_test"},
		Interval:               "month",
		IntervalCount:          1,
	}}
	router, accounts := subscriptionRouter(t, provider)
	before := accounts.accounts["acme"].Subscriptions[0].DateExpires

	rec := doJSON(t, router, http.MethodPost, "/api/subscriptions/renew", map[string]string{})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "1 subscription(s)")
	require.True(t, accounts.accounts["acme"].Subscriptions[0].DateExpires.After(before))
}
