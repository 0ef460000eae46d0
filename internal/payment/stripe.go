package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Checkout only accepts expires_at between 30 minutes and 24 hours after
// session creation. The margin absorbs clock skew and second truncation.
const (
	stripeMinSessionTTL = 30 * time.Minute
	stripeExpiryMargin  = time.Minute
	stripeMaxSessionTTL = 24 * time.Hour
)

type StripeProvider struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
	now     func() time.Time
}

func NewStripeProvider(baseURL, apiKey, secret string, client *http.Client) *StripeProvider {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &StripeProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		secret:  secret,
		client:  client,
		now:     time.Now,
	}
}

func (p *StripeProvider) Name() ProviderName { return Stripe }

type stripeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateSession opens a Checkout Session in payment mode.
func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.PurchaseID)
	form.Set("payment_method_types[0]", req.PaymentMethod)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("metadata[purchase_id]", req.PurchaseID)
	form.Set("metadata[user_id]", strconv.Itoa(req.UserID))
	if !req.ExpiresAt.IsZero() {
		form.Set("expires_at", strconv.FormatInt(p.sessionExpiry(req.ExpiresAt).Unix(), 10))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "stripe: build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	body, status, err := do(p.client, httpReq)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusMultipleChoices {
		var apiErr stripeError
		_ = json.Unmarshal(body, &apiErr)
		return nil, errors.Wrapf(ErrProviderUnavailable, "stripe: status %d: %s", status, apiErr.Error.Message)
	}

	var session stripeSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, errors.Wrap(ErrProviderUnavailable, "stripe: undecodable session response")
	}
	if session.ID == "" || session.URL == "" {
		return nil, errors.Wrap(ErrProviderUnavailable, "stripe: session response missing id or url")
	}

	return &Session{ID: session.ID, RedirectURL: session.URL}, nil
}

// sessionExpiry clamps the purchase deadline into the window Checkout accepts.
func (p *StripeProvider) sessionExpiry(expiresAt time.Time) time.Time {
	now := p.now()
	if earliest := now.Add(stripeMinSessionTTL + stripeExpiryMargin); expiresAt.Before(earliest) {
		return earliest
	}
	if latest := now.Add(stripeMaxSessionTTL); expiresAt.After(latest) {
		return latest
	}
	return expiresAt
}

func (p *StripeProvider) VerifySignature(signature string, body []byte) error {
	return verifyStripeSignature(p.secret, signature, body, p.now())
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			PaymentStatus string `json:"payment_status"`
		} `json:"object"`
	} `json:"data"`
}

func (p *StripeProvider) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var raw stripeEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "stripe: event id and type are required")
	}

	obj := raw.Data.Object
	ev := &WebhookEvent{
		Provider:        Stripe,
		ProviderEventID: raw.ID,
		Type:            raw.Type,
		SessionID:       obj.ID,
		TransactionID:   obj.PaymentIntent,
		Outcome:         OutcomeIgnored,
	}

	switch raw.Type {
	case "checkout.session.completed":
		// Delayed methods report "unpaid" here and settle via async_payment_*.
		if obj.PaymentStatus == "paid" || obj.PaymentStatus == "no_payment_required" {
			ev.Outcome = OutcomeSucceeded
		}
	case "checkout.session.async_payment_succeeded":
		ev.Outcome = OutcomeSucceeded
	case "checkout.session.async_payment_failed":
		failedEvent(ev, "", "payment failed")
	case "checkout.session.expired":
		failedEvent(ev, "expired", "checkout session expired")
	}

	if ev.Outcome != OutcomeIgnored && ev.SessionID == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "stripe: event has no session id")
	}
	return ev, nil
}
