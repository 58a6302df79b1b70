package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Pentico/subscription-service/internal/domain"
)

func testAccount() *domain.Account {
	return &domain.Account{
		ID:        "acc-1",
		Reference: "acme",
		Email:     "billing@acme.test",
	}
}

func newSub(planID string) *domain.Subscription {
	return &domain.Subscription{
		ID:          "sub-1",
		PlanID:      planID,
		Billing:     "month",
		DateExpires: time.Now().AddDate(0, 1, 0),
	}
}

func TestStripeProvider_CreateSubscription(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		paths = append(paths, r.URL.Path)

		switch r.URL.Path {
		case "/customers":
			require.Equal(t, "billing@acme.test", r.Form.Get("email"))
			require.Equal(t, "tok_visa", r.Form.Get("source"))
			w.Write([]byte(`{"id":"cus_123"}`))
		case "/subscriptions":
			require.Equal(t, "cus_123", r.Form.Get("customer"))
			require.Equal(t, "plan-gold", r.Form.Get("items[0][plan]"))
			w.Write([]byte(`{"id":"sub_456"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	provider := NewStripeProvider(server.URL, "sk_test", "")
	result, err := provider.CreateOrUpdateSubscription(context.Background(), CreateOrUpdateParams{
		Account:         testAccount(),
		NewSubscription: newSub("plan-gold"),
		Payment:         Payment{Token: "tok_visa"},
	})
	require.NoError(t, err)

	require.True(t, result.IsNew)
	require.Equal(t, "cus_123", result.PaymentCustomerID)
	require.Equal(t, "sub_456", result.PaymentSubscriptionID)
	require.Equal(t, []string{"/customers", "/subscriptions"}, paths)
}

func TestStripeProvider_UpdateExistingSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/subscriptions/sub_existing", r.URL.Path)
		w.Write([]byte(`{"id":"sub_existing"}`))
	}))
	defer server.Close()

	account := testAccount()
	account.Metadata.PaymentCustomerID = "cus_123"
	existing := newSub("plan-silver")
	existing.Metadata.PaymentSubscriptionID = "sub_existing"

	provider := NewStripeProvider(server.URL, "sk_test", "")
	result, err := provider.CreateOrUpdateSubscription(context.Background(), CreateOrUpdateParams{
		Account:              account,
		ExistingSubscription: existing,
		NewSubscription: &domain.Subscription{
			PlanID:   "plan-gold",
			Billing:  "month",
			Metadata: existing.Metadata,
		},
	})
	require.NoError(t, err)

	require.False(t, result.IsNew)
	require.Equal(t, "sub_existing", result.PaymentSubscriptionID)
}

func TestStripeProvider_ProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"card declined"}}`))
	}))
	defer server.Close()

	provider := NewStripeProvider(server.URL, "sk_test", "")
	_, err := provider.CreateOrUpdateSubscription(context.Background(), CreateOrUpdateParams{
		Account:         testAccount(),
		NewSubscription: newSub("plan-gold"),
	})
	require.Error(t, err)

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadGateway, appErr.Code)
	require.Contains(t, appErr.Message, "card declined")
}

func TestStripeProvider_DeleteWithoutProviderIDIsNoop(t *testing.T) {
	provider := NewStripeProvider("http://unreachable.invalid", "sk_test", "")
	err := provider.DeleteSubscription(context.Background(), newSub("plan-gold"))
	require.NoError(t, err)
}

const renewPayload = `{
	"type": "invoice.payment_succeeded",
	"data": {"object": {
		"customer": "cus_123",
		"lines": {"data": [
			{"subscription": "sub_1", "plan": {"interval": "year", "interval_count": 1}},
			{"subscription": "sub_2", "plan": {"interval": "year", "interval_count": 1}}
		]}
	}}
}`

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "t=123,v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestStripeProvider_ReceiveRenewSubscription(t *testing.T) {
	provider := NewStripeProvider("http://unused", "sk_test", "whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/renew", strings.NewReader(renewPayload))
	req.Header.Set("Stripe-Signature", signBody("whsec_test", []byte(renewPayload)))

	notification, err := provider.ReceiveRenewSubscription(req)
	require.NoError(t, err)

	require.Equal(t, "cus_123", notification.PaymentCustomerID)
	require.Equal(t, []string{"sub_1", "sub_2"}, notification.PaymentSubscriptionIDs)
	require.Equal(t, "year", notification.Interval)
	require.Equal(t, 1, notification.IntervalCount)
}

func TestStripeProvider_ReceiveRenewSubscription_BadSignature(t *testing.T) {
	provider := NewStripeProvider("http://unused", "sk_test", "whsec_test")

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/renew", strings.NewReader(renewPayload))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")

	_, err := provider.ReceiveRenewSubscription(req)
	require.Error(t, err)

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, appErr.Code)
}

func TestStripeProvider_ReceiveRenewSubscription_WrongEvent(t *testing.T) {
	provider := NewStripeProvider("http://unused", "sk_test", "")

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/renew",
		strings.NewReader(`{"type":"customer.created","data":{"object":{}}}`))

	_, err := provider.ReceiveRenewSubscription(req)
	require.Error(t, err)
}
