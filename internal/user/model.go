package user

import (
	"time"

	"cardshop/internal/wallet"
)

type User struct {
	ID        int        `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Role      string     `db:"role" json:"role"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// DeleteResult lists the compensating ledger rows written when the account
// was closed.
type DeleteResult struct {
	User    User             `json:"user"`
	Cleared []wallet.History `json:"cleared"`
}
