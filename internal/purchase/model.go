package purchase

import (
	"time"

	"cardshop/internal/wallet"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusExpired},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusExpired},
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// CanTransition reports whether a request may move from s to next.
// Terminal states have no outgoing edges.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Request is one purchase attempt. WalletHistoryID is set exactly when
// Status is completed.
type Request struct {
	ID               string      `db:"id"`
	UserID           int         `db:"user_id"`
	IdempotencyKey   string      `db:"idempotency_key"`
	WalletType       wallet.Type `db:"wallet_type"`
	Amount           int64       `db:"amount"`
	PaymentAmount    int64       `db:"payment_amount"`
	PaymentMethod    string      `db:"payment_method"`
	PaymentProvider  string      `db:"payment_provider"`
	Status           Status      `db:"status"`
	PaymentSessionID *string     `db:"payment_session_id"`
	TransactionID    *string     `db:"transaction_id"`
	RedirectURL      *string     `db:"redirect_url"`
	ErrorCode        *string     `db:"error_code"`
	ErrorMessage     *string     `db:"error_message"`
	WalletHistoryID  *int64      `db:"wallet_history_id"`
	CompletedAt      *time.Time  `db:"completed_at"`
	PaidAt           *time.Time  `db:"paid_at"`
	ExpiresAt        time.Time   `db:"expires_at"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (r *Request) expiredAt(now time.Time) bool {
	return !r.Status.IsTerminal() && !now.Before(r.ExpiresAt)
}

// sameIntent reports whether in describes the purchase r was created for.
func (r *Request) sameIntent(in InitiateInput) bool {
	return r.UserID == in.UserID &&
		r.WalletType == in.WalletType &&
		r.Amount == in.Amount &&
		r.PaymentAmount == in.PaymentAmount &&
		r.PaymentMethod == in.PaymentMethod
}

// StatusView is what a buyer sees when polling.
type StatusView struct {
	ID            string      `json:"id"`
	Status        Status      `json:"status"`
	WalletType    wallet.Type `json:"walletType"`
	Amount        int64       `json:"amount"`
	PaymentAmount int64       `json:"paymentAmount"`
	PaymentMethod string      `json:"paymentMethod"`
	CompletedAt   *time.Time  `json:"completedAt"`
	ErrorCode     *string     `json:"errorCode"`
	ErrorMessage  *string     `json:"errorMessage"`
	CreatedAt     time.Time   `json:"createdAt"`
}

func (r *Request) View() StatusView {
	return StatusView{
		ID:            r.ID,
		Status:        r.Status,
		WalletType:    r.WalletType,
		Amount:        r.Amount,
		PaymentAmount: r.PaymentAmount,
		PaymentMethod: r.PaymentMethod,
		CompletedAt:   r.CompletedAt,
		ErrorCode:     r.ErrorCode,
		ErrorMessage:  r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
	}
}

// InitiateRequest is the body of POST /wallet/purchase/initiate.
type InitiateRequest struct {
	IdempotencyKey string      `json:"idempotencyKey" validate:"required,uuid"`
	WalletType     wallet.Type `json:"walletType" validate:"required,oneof=regular_coin bonus_coin"`
	Amount         int64       `json:"amount" validate:"gt=0"`
	PaymentAmount  int64       `json:"paymentAmount" validate:"gt=0"`
	PaymentMethod  string      `json:"paymentMethod" validate:"required,max=32"`
}

type InitiateInput struct {
	UserID         int
	IdempotencyKey string
	WalletType     wallet.Type
	Amount         int64
	PaymentAmount  int64
	PaymentMethod  string
	// BaseURL is where the provider sends the buyer back to.
	BaseURL string
}

type InitiateResult struct {
	RequestID         string  `json:"requestId"`
	RedirectURL       *string `json:"redirectUrl"`
	AlreadyProcessing bool    `json:"alreadyProcessing"`
	AlreadyCompleted  bool    `json:"alreadyCompleted"`
}

type WebhookResult struct {
	Result     string `json:"result"`
	PurchaseID string `json:"purchaseId,omitempty"`
}

// Webhook results.
const (
	ResultCompleted      = "completed"
	ResultFailed         = "failed"
	ResultDuplicate      = "duplicate"
	ResultUnknownSession = "unknown_session"
	ResultIgnored        = "ignored"
)
