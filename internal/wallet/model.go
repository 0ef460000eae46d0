package wallet

import (
	"encoding/json"
	"time"
)

// Type is the currency kind a wallet holds.
type Type string

const (
	TypeRegularCoin Type = "regular_coin"
	TypeBonusCoin   Type = "bonus_coin"
)

func (t Type) Valid() bool {
	switch t {
	case TypeRegularCoin, TypeBonusCoin:
		return true
	}
	return false
}

type ChangeMethod string

const (
	ChangeIncrement ChangeMethod = "increment"
	ChangeDecrement ChangeMethod = "decrement"
	ChangeSet       ChangeMethod = "set"
)

func (m ChangeMethod) Valid() bool {
	switch m {
	case ChangeIncrement, ChangeDecrement, ChangeSet:
		return true
	}
	return false
}

type SourceType string

const (
	SourceUserAction  SourceType = "user_action"
	SourceAdminAction SourceType = "admin_action"
	SourceSystem      SourceType = "system"
)

// Wallet is the current balance of one user in one currency.
type Wallet struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int       `db:"user_id" json:"user_id"`
	Type          Type      `db:"type" json:"type"`
	Balance       int64     `db:"balance" json:"balance"`
	LockedBalance int64     `db:"locked_balance" json:"locked_balance"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Available is the part of the balance that can be spent.
func (w *Wallet) Available() int64 {
	return w.Balance - w.LockedBalance
}

// History is one immutable ledger row. BalanceAfter always equals
// BalanceBefore + PointsDelta.
type History struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int             `db:"user_id" json:"user_id"`
	Type           Type            `db:"type" json:"type"`
	ChangeMethod   ChangeMethod    `db:"change_method" json:"change_method"`
	PointsDelta    int64           `db:"points_delta" json:"points_delta"`
	BalanceBefore  int64           `db:"balance_before" json:"balance_before"`
	BalanceAfter   int64           `db:"balance_after" json:"balance_after"`
	SourceType     SourceType      `db:"source_type" json:"source_type"`
	RequestBatchID *string         `db:"request_batch_id" json:"request_batch_id,omitempty"`
	Reason         string          `db:"reason" json:"reason"`
	Meta           json.RawMessage `db:"meta" json:"meta"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Entry carries the ledger metadata for a balance change.
type Entry struct {
	SourceType     SourceType
	Reason         string
	Meta           map[string]interface{}
	RequestBatchID string
}

// Mismatch is a wallet whose balance disagrees with its latest ledger row.
type Mismatch struct {
	Type         Type  `db:"type" json:"type"`
	Balance      int64 `db:"balance" json:"balance"`
	LedgerAmount int64 `db:"ledger_amount" json:"ledger_amount"`
}

type AdjustRequest struct {
	WalletType   Type         `json:"wallet_type" validate:"required"`
	ChangeMethod ChangeMethod `json:"change_method" validate:"required"`
	Amount       int64        `json:"amount" validate:"gte=0"`
	Reason       string       `json:"reason" validate:"required,max=255"`
}
