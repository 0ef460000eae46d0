package payment

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DummyProvider completes checkouts locally. Its webhooks are posted by hand
// or by tests with a body like {"event_type":"payment.completed","session_id":"..."}.
type DummyProvider struct {
	secret string
}

func NewDummyProvider(secret string) *DummyProvider {
	return &DummyProvider{secret: secret}
}

func (p *DummyProvider) Name() ProviderName { return Dummy }

func (p *DummyProvider) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	id := "dummy_" + uuid.NewString()

	redirect, err := url.Parse(req.SuccessURL)
	if err != nil {
		return nil, errors.Wrap(err, "dummy: bad success url")
	}
	q := redirect.Query()
	q.Set("session_id", id)
	q.Set("purchase_id", req.PurchaseID)
	redirect.RawQuery = q.Encode()

	return &Session{ID: id, RedirectURL: redirect.String()}, nil
}

func (p *DummyProvider) VerifySignature(signature string, body []byte) error {
	if p.secret == "" {
		return errors.Wrap(ErrInvalidSignature, "dummy: no secret configured")
	}
	return verifyBodySignature(p.secret, signature, body)
}

type dummyEvent struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
	ErrorCode     string `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

func (p *DummyProvider) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var raw dummyEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if raw.EventType == "" || raw.SessionID == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "event_type and session_id are required")
	}

	ev := &WebhookEvent{
		Provider:        Dummy,
		ProviderEventID: raw.EventID,
		Type:            raw.EventType,
		SessionID:       raw.SessionID,
		TransactionID:   raw.TransactionID,
	}
	// Redeliveries of the same unnamed event collapse onto one id.
	if ev.ProviderEventID == "" {
		ev.ProviderEventID = raw.EventType + ":" + raw.SessionID
	}

	switch raw.EventType {
	case "payment.completed":
		ev.Outcome = OutcomeSucceeded
		if ev.TransactionID == "" {
			ev.TransactionID = raw.SessionID
		}
	case "payment.failed":
		failedEvent(ev, raw.ErrorCode, raw.ErrorMessage)
	case "payment.cancelled":
		failedEvent(ev, "cancelled", raw.ErrorMessage)
	default:
		ev.Outcome = OutcomeIgnored
	}
	return ev, nil
}
