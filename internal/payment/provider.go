package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type ProviderName string

const (
	Dummy  ProviderName = "dummy"
	Stripe ProviderName = "stripe"
	Komoju ProviderName = "komoju"
)

// preference is the order ForMethod walks when several providers accept a method.
var preference = []ProviderName{Stripe, Komoju, Dummy}

func (n ProviderName) Valid() bool {
	switch n {
	case Dummy, Stripe, Komoju:
		return true
	}
	return false
}

// Signed reports whether webhooks from this provider must carry a signature.
func (n ProviderName) Signed() bool {
	return n != Dummy
}

var (
	ErrUnknownProvider     = errors.New("unknown payment provider")
	ErrProviderDisabled    = errors.New("payment provider is not enabled")
	ErrNoProviderForMethod = errors.New("no enabled provider supports this payment method")
	ErrProviderUnavailable = errors.New("payment provider request failed")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMalformedPayload    = errors.New("malformed webhook payload")
)

// Provider-agnostic failure reasons shown to users.
const (
	ReasonPaymentFailed     = "PAYMENT_FAILED"
	ReasonCardDeclined      = "CARD_DECLINED"
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonCancelled         = "PAYMENT_CANCELLED"
	ReasonExpired           = "PAYMENT_EXPIRED"
)

var reasonByProviderCode = map[string]string{
	"card_declined":      ReasonCardDeclined,
	"declined":           ReasonCardDeclined,
	"do_not_honor":       ReasonCardDeclined,
	"expired_card":       ReasonCardDeclined,
	"incorrect_cvc":      ReasonCardDeclined,
	"insufficient_funds": ReasonInsufficientFunds,
	"canceled":           ReasonCancelled,
	"cancelled":          ReasonCancelled,
	"expired":            ReasonExpired,
}

// NormalizeReason maps a provider error code onto one of the Reason constants.
func NormalizeReason(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	switch code {
	case "":
		return ReasonPaymentFailed
	case strings.ToLower(ReasonPaymentFailed), strings.ToLower(ReasonCardDeclined),
		strings.ToLower(ReasonInsufficientFunds), strings.ToLower(ReasonCancelled), strings.ToLower(ReasonExpired):
		return strings.ToUpper(code)
	}
	if reason, ok := reasonByProviderCode[code]; ok {
		return reason
	}
	return ReasonPaymentFailed
}

type SessionRequest struct {
	PurchaseID     string
	UserID         int
	Amount         int64
	Currency       string
	PaymentMethod  string
	Description    string
	SuccessURL     string
	CancelURL      string
	ExpiresAt      time.Time
	IdempotencyKey string
}

type Session struct {
	ID          string
	RedirectURL string
}

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeIgnored is an authentic event that does not finish a payment.
	OutcomeIgnored Outcome = "ignored"
)

type WebhookEvent struct {
	Provider        ProviderName
	ProviderEventID string
	Type            string
	SessionID       string
	TransactionID   string
	Outcome         Outcome
	ErrorCode       string
	ErrorMessage    string
	Raw             json.RawMessage
}

type Provider interface {
	Name() ProviderName
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// VerifySignature checks the value of the provider's signature header.
	VerifySignature(signature string, body []byte) error
	ParseWebhook(body []byte) (*WebhookEvent, error)
}

func failedEvent(ev *WebhookEvent, providerCode, message string) *WebhookEvent {
	ev.Outcome = OutcomeFailed
	ev.ErrorCode = NormalizeReason(providerCode)
	ev.ErrorMessage = message
	if ev.ErrorMessage == "" {
		ev.ErrorMessage = "payment was not completed"
	}
	return ev
}
