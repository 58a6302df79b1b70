package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Pentico/subscription-service/internal/domain"
	"github.com/Pentico/subscription-service/internal/service"
	"github.com/Pentico/subscription-service/pkg/payment"
)

// SubscriptionHandler exposes the subscription lifecycle over HTTP, under
// both the account and the user route families.
type SubscriptionHandler struct {
	svc      *service.SubscriptionService
	provider payment.Provider
}

func NewSubscriptionHandler(svc *service.SubscriptionService, provider payment.Provider) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc, provider: provider}
}

// lookup builds the account lookup from whichever route family matched.
func lookup(r *http.Request) service.AccountLookup {
	return service.AccountLookup{
		AccountReference: chi.URLParam(r, "accountReference"),
		UserReference:    chi.URLParam(r, "userReference"),
	}
}

// List handles GET .../subscriptions.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.List(r.Context(), lookup(r))
	if err != nil {
		Error(w, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	JSON(w, http.StatusOK, subs)
}

// Read handles GET .../subscriptions/{subscriptionId}.
func (h *SubscriptionHandler) Read(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Read(r.Context(), lookup(r), chi.URLParam(r, "subscriptionId"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Create handles POST .../subscriptions. The ignorePaymentProvider query
// flag bypasses billing; it exists for data migrations.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	ignoreProvider := r.URL.Query().Has("ignorePaymentProvider")
	subs, err := h.svc.Create(r.Context(), lookup(r), &req, ignoreProvider)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, subs)
}

// Update handles PUT .../subscriptions/{subscriptionId}.
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	sub, err := h.svc.Update(r.Context(), lookup(r), chi.URLParam(r, "subscriptionId"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Delete handles DELETE .../subscriptions[/{subscriptionId}]. Without an id
// it stops every active subscription on the account.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	stopped, err := h.svc.Stop(r.Context(), lookup(r), chi.URLParam(r, "subscriptionId"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Stopped %d subscriptions", stopped),
		"stopped": stopped,
	})
}

// Renew handles POST /api/subscriptions/renew, the inbound provider
// webhook. The response only reflects the local update; the outbound
// notification runs asynchronously and cannot fail this request.
func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	notification, err := h.provider.ReceiveRenewSubscription(r)
	if err != nil {
		Error(w, err)
		return
	}

	renewed, err := h.svc.Renew(r.Context(), notification)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Updated account and %d subscription(s)", renewed),
	})
}
