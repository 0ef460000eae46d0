package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type KomojuProvider struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
}

func NewKomojuProvider(baseURL, apiKey, secret string, client *http.Client) *KomojuProvider {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &KomojuProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		secret:  secret,
		client:  client,
	}
}

func (p *KomojuProvider) Name() ProviderName { return Komoju }

type komojuSessionRequest struct {
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	ReturnURL          string            `json:"return_url"`
	PaymentTypes       []string          `json:"payment_types"`
	DefaultLocale      string            `json:"default_locale"`
	ExternalCustomerID string            `json:"external_customer_id"`
	ExpiresInSeconds   int64             `json:"expires_in_seconds,omitempty"`
	Metadata           map[string]string `json:"metadata"`
}

type komojuSession struct {
	ID         string `json:"id"`
	SessionURL string `json:"session_url"`
}

type komojuError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *KomojuProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	payload := komojuSessionRequest{
		Amount:             req.Amount,
		Currency:           strings.ToUpper(req.Currency),
		ReturnURL:          req.SuccessURL,
		PaymentTypes:       []string{req.PaymentMethod},
		DefaultLocale:      "ja",
		ExternalCustomerID: strconv.Itoa(req.UserID),
		Metadata: map[string]string{
			"purchase_id": req.PurchaseID,
		},
	}
	if !req.ExpiresAt.IsZero() {
		if ttl := time.Until(req.ExpiresAt); ttl > 0 {
			payload.ExpiresInSeconds = int64(ttl.Seconds())
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "komoju: encode session request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/sessions", bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "komoju: build request")
	}
	httpReq.SetBasicAuth(p.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-KOMOJU-IDEMPOTENCY", req.IdempotencyKey)

	body, status, err := do(p.client, httpReq)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusMultipleChoices {
		var apiErr komojuError
		_ = json.Unmarshal(body, &apiErr)
		return nil, errors.Wrapf(ErrProviderUnavailable, "komoju: status %d: %s", status, apiErr.Error.Message)
	}

	var session komojuSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, errors.Wrap(ErrProviderUnavailable, "komoju: undecodable session response")
	}
	if session.ID == "" || session.SessionURL == "" {
		return nil, errors.Wrap(ErrProviderUnavailable, "komoju: session response missing id or url")
	}

	return &Session{ID: session.ID, RedirectURL: session.SessionURL}, nil
}

func (p *KomojuProvider) VerifySignature(signature string, body []byte) error {
	return verifyBodySignature(p.secret, signature, body)
}

type komojuEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		Session       string `json:"session"`
		FailureReason string `json:"failure_reason"`
		FailureMsg    string `json:"failure_message"`
	} `json:"data"`
}

func (p *KomojuProvider) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var raw komojuEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "komoju: event id and type are required")
	}

	ev := &WebhookEvent{
		Provider:        Komoju,
		ProviderEventID: raw.ID,
		Type:            raw.Type,
		SessionID:       raw.Data.Session,
		TransactionID:   raw.Data.ID,
		Outcome:         OutcomeIgnored,
	}

	switch raw.Type {
	case "payment.captured":
		ev.Outcome = OutcomeSucceeded
	case "payment.failed":
		failedEvent(ev, raw.Data.FailureReason, raw.Data.FailureMsg)
	case "payment.cancelled":
		failedEvent(ev, "cancelled", raw.Data.FailureMsg)
	case "payment.expired":
		failedEvent(ev, "expired", "payment expired")
	}

	if ev.Outcome != OutcomeIgnored && ev.SessionID == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "komoju: event has no session id")
	}
	return ev, nil
}
