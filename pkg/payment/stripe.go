package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Pentico/subscription-service/internal/domain"
)

// StripeProvider talks to a Stripe-shaped REST API: form-encoded requests,
// bearer-key auth, and an HMAC-signed renewal webhook.
type StripeProvider struct {
	apiURL        string
	apiKey        string
	webhookSecret string
	client        *http.Client
	log           *logrus.Entry
}

func NewStripeProvider(apiURL, apiKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		apiURL:        strings.TrimRight(apiURL, "/"),
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
		log:           logrus.WithField("component", "stripe"),
	}
}

// CreateOrUpdateSubscription updates the provider subscription in place when
// both the existing subscription and the account already carry provider ids;
// otherwise it creates a customer (if needed) and a fresh subscription.
func (p *StripeProvider) CreateOrUpdateSubscription(ctx context.Context, params CreateOrUpdateParams) (*CreateOrUpdateResult, error) {
	existing := params.ExistingSubscription
	customerID := params.Account.Metadata.PaymentCustomerID

	if existing != nil && existing.Metadata.PaymentSubscriptionID != "" && customerID != "" {
		err := p.UpdateSubscription(ctx, UpdateParams{
			User:         params.User,
			Account:      params.Account,
			Subscription: params.NewSubscription,
			Payment:      params.Payment,
		})
		if err != nil {
			return nil, err
		}
		return &CreateOrUpdateResult{
			IsNew:                 false,
			PaymentCustomerID:     customerID,
			PaymentSubscriptionID: existing.Metadata.PaymentSubscriptionID,
		}, nil
	}

	if customerID == "" {
		id, err := p.createCustomer(ctx, params)
		if err != nil {
			return nil, err
		}
		customerID = id
	}

	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][plan]", providerPlanID(params.NewSubscription))
	if params.Payment.PaymentMethod != "" {
		form.Set("default_payment_method", params.Payment.PaymentMethod)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := p.post(ctx, "/subscriptions", form, &created); err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"account":      params.Account.Reference,
		"subscription": created.ID,
	}).Info("created provider subscription")

	return &CreateOrUpdateResult{
		IsNew:                 true,
		PaymentCustomerID:     customerID,
		PaymentSubscriptionID: created.ID,
	}, nil
}

func (p *StripeProvider) UpdateSubscription(ctx context.Context, params UpdateParams) error {
	providerID := params.Subscription.Metadata.PaymentSubscriptionID
	if providerID == "" {
		return domain.ErrProvider("subscription has no provider record", nil)
	}

	form := url.Values{}
	form.Set("items[0][plan]", providerPlanID(params.Subscription))
	if params.Payment.Token != "" {
		form.Set("source", params.Payment.Token)
	}

	return p.post(ctx, "/subscriptions/"+providerID, form, nil)
}

func (p *StripeProvider) DeleteSubscription(ctx context.Context, sub *domain.Subscription) error {
	providerID := sub.Metadata.PaymentSubscriptionID
	if providerID == "" {
		// Never reached the provider; nothing to cancel there.
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.apiURL+"/subscriptions/"+providerID, nil)
	if err != nil {
		return domain.ErrProvider("failed to build provider request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.ErrProvider("provider call failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return p.providerError(resp)
	}
	return nil
}

// ReceiveRenewSubscription parses an invoice.payment_succeeded-shaped
// webhook payload into a renewal notification.
func (p *StripeProvider) ReceiveRenewSubscription(r *http.Request) (*RenewNotification, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, domain.ErrBadRequest("failed to read webhook body")
	}

	if p.webhookSecret != "" {
		if !p.verifySignature(r.Header.Get("Stripe-Signature"), body) {
			return nil, domain.ErrUnauthorized("invalid webhook signature")
		}
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				Customer string `json:"customer"`
				Lines    struct {
					Data []struct {
						Subscription string `json:"subscription"`
						Plan         struct {
							Interval      string `json:"interval"`
							IntervalCount int    `json:"interval_count"`
						} `json:"plan"`
					} `json:"data"`
				} `json:"lines"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, domain.ErrBadRequest("invalid webhook JSON")
	}
	if event.Type != "invoice.payment_succeeded" {
		return nil, domain.ErrBadRequest("unsupported webhook event: " + event.Type)
	}
	if event.Data.Object.Customer == "" || len(event.Data.Object.Lines.Data) == 0 {
		return nil, domain.ErrBadRequest("webhook payload missing customer or lines")
	}

	notification := &RenewNotification{
		PaymentCustomerID: event.Data.Object.Customer,
		Interval:          event.Data.Object.Lines.Data[0].Plan.Interval,
		IntervalCount:     event.Data.Object.Lines.Data[0].Plan.IntervalCount,
	}
	for _, line := range event.Data.Object.Lines.Data {
		if line.Subscription != "" {
			notification.PaymentSubscriptionIDs = append(notification.PaymentSubscriptionIDs, line.Subscription)
		}
	}
	return notification, nil
}

func (p *StripeProvider) createCustomer(ctx context.Context, params CreateOrUpdateParams) (string, error) {
	form := url.Values{}
	if params.Account.Email != "" {
		form.Set("email", params.Account.Email)
	}
	form.Set("description", "account "+params.Account.Reference)
	if params.Payment.Token != "" {
		form.Set("source", params.Payment.Token)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := p.post(ctx, "/customers", form, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (p *StripeProvider) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.ErrProvider("failed to build provider request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.ErrProvider("provider call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return p.providerError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.ErrProvider("invalid provider response", err)
		}
	}
	return nil
}

func (p *StripeProvider) providerError(resp *http.Response) error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error.Message != "" {
		return domain.ErrProvider(payload.Error.Message, nil)
	}
	return domain.ErrProvider(fmt.Sprintf("provider returned HTTP %d", resp.StatusCode), nil)
}

// verifySignature checks the v1 element of the signature header against an
// HMAC-SHA256 of the raw body.
func (p *StripeProvider) verifySignature(header string, body []byte) bool {
	var signature string
	for _, part := range strings.Split(header, ",") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(part), "v1="); ok {
			signature = value
		}
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// providerPlanID is the plan identifier sent to the provider. The provider
// catalog mirrors our internal plan ids.
func providerPlanID(sub *domain.Subscription) string {
	return sub.PlanID
}
