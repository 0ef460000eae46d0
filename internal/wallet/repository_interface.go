package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetOrCreateWallet(ctx context.Context, userID int, walletType Type) (*Wallet, error)
	ListWallets(ctx context.Context, userID int) ([]Wallet, error)
	// Apply must run inside the caller's transaction; it locks the wallet row.
	Apply(ctx context.Context, tx *sqlx.Tx, userID int, walletType Type, method ChangeMethod, amount int64, entry Entry) (*History, error)
	Credit(ctx context.Context, userID int, walletType Type, amount int64, entry Entry) (*History, error)
	Debit(ctx context.Context, userID int, walletType Type, amount int64, entry Entry) (*History, error)
	Adjust(ctx context.Context, userID int, walletType Type, method ChangeMethod, amount int64, entry Entry) (*History, error)
	ClearBalance(ctx context.Context, userID int, reason string) ([]History, error)
	ListHistory(ctx context.Context, userID int, walletType Type, limit, offset int) ([]History, error)
	Reconcile(ctx context.Context, userID int) ([]Mismatch, error)
}
