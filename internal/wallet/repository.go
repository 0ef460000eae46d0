package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"cardshop/internal/db"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidWalletType   = errors.New("unknown wallet type")
	ErrInvalidChangeMethod = errors.New("unknown change method")
)

const walletColumns = `id, user_id, type, balance, locked_balance, created_at, updated_at`

const historyColumns = `id, user_id, type, change_method, points_delta, balance_before, balance_after,
	source_type, request_batch_id, reason, meta, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetOrCreateWallet(ctx context.Context, userID int, walletType Type) (*Wallet, error) {
	if !walletType.Valid() {
		return nil, ErrInvalidWalletType
	}

	w := &Wallet{}
	err := r.db.GetContext(ctx, w,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND type = $2`,
		userID, walletType,
	)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, type) VALUES ($1, $2) ON CONFLICT (user_id, type) DO NOTHING`,
		userID, walletType,
	)
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, w,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND type = $2`,
		userID, walletType,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) ListWallets(ctx context.Context, userID int) ([]Wallet, error) {
	wallets := []Wallet{}
	err := r.db.SelectContext(ctx, &wallets,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY type`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// lockWallet returns the wallet row locked FOR UPDATE, creating it first when
// the user has never held this currency.
func lockWallet(ctx context.Context, tx *sqlx.Tx, userID int, walletType Type) (*Wallet, error) {
	var w Wallet
	err := tx.QueryRowxContext(ctx,
		`SELECT `+walletColumns+`
		 FROM wallets
		 WHERE user_id = $1 AND type = $2
		 FOR UPDATE`,
		userID, walletType,
	).StructScan(&w)
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallets (user_id, type) VALUES ($1, $2) ON CONFLICT (user_id, type) DO NOTHING`,
		userID, walletType,
	)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRowxContext(ctx,
		`SELECT `+walletColumns+`
		 FROM wallets
		 WHERE user_id = $1 AND type = $2
		 FOR UPDATE`,
		userID, walletType,
	).StructScan(&w)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func nextBalance(w *Wallet, method ChangeMethod, amount int64) (int64, error) {
	switch method {
	case ChangeIncrement:
		if amount <= 0 {
			return 0, ErrInvalidAmount
		}
		return w.Balance + amount, nil
	case ChangeDecrement:
		if amount <= 0 {
			return 0, ErrInvalidAmount
		}
		if w.Available() < amount {
			return 0, ErrInsufficientBalance
		}
		return w.Balance - amount, nil
	case ChangeSet:
		if amount < 0 {
			return 0, ErrInvalidAmount
		}
		if amount < w.LockedBalance {
			return 0, ErrInsufficientBalance
		}
		return amount, nil
	default:
		return 0, ErrInvalidChangeMethod
	}
}

func (r *repository) Apply(ctx context.Context, tx *sqlx.Tx, userID int, walletType Type, method ChangeMethod, amount int64, entry Entry) (*History, error) {
	if !walletType.Valid() {
		return nil, ErrInvalidWalletType
	}
	if !method.Valid() {
		return nil, ErrInvalidChangeMethod
	}

	w, err := lockWallet(ctx, tx, userID, walletType)
	if err != nil {
		return nil, errors.Wrap(err, "lock wallet")
	}

	newBalance, err := nextBalance(w, method, amount)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance = $1, updated_at = NOW()
		 WHERE id = $2`,
		newBalance, w.ID,
	)
	if err != nil {
		return nil, err
	}

	meta, err := encodeMeta(entry.Meta)
	if err != nil {
		return nil, err
	}

	h := &History{
		UserID:         userID,
		Type:           walletType,
		ChangeMethod:   method,
		PointsDelta:    newBalance - w.Balance,
		BalanceBefore:  w.Balance,
		BalanceAfter:   newBalance,
		SourceType:     sourceOrDefault(entry.SourceType),
		RequestBatchID: optional(entry.RequestBatchID),
		Reason:         entry.Reason,
		Meta:           meta,
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO wallet_histories
		 (user_id, type, change_method, points_delta, balance_before, balance_after, source_type, request_batch_id, reason, meta)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		h.UserID, h.Type, h.ChangeMethod, h.PointsDelta, h.BalanceBefore, h.BalanceAfter,
		h.SourceType, h.RequestBatchID, h.Reason, []byte(h.Meta),
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return nil, err
	}

	return h, nil
}

func (r *repository) Credit(ctx context.Context, userID int, walletType Type, amount int64, entry Entry) (*History, error) {
	return r.Adjust(ctx, userID, walletType, ChangeIncrement, amount, entry)
}

func (r *repository) Debit(ctx context.Context, userID int, walletType Type, amount int64, entry Entry) (*History, error) {
	return r.Adjust(ctx, userID, walletType, ChangeDecrement, amount, entry)
}

func (r *repository) Adjust(ctx context.Context, userID int, walletType Type, method ChangeMethod, amount int64, entry Entry) (*History, error) {
	var h *History
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		h, err = r.Apply(ctx, tx, userID, walletType, method, amount, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ClearBalance zeroes every non-empty wallet of the user and writes one
// compensating system row per wallet, all sharing a request batch id.
func (r *repository) ClearBalance(ctx context.Context, userID int, reason string) ([]History, error) {
	var cleared []History
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var wallets []Wallet
		err := tx.SelectContext(ctx, &wallets,
			`SELECT `+walletColumns+`
			 FROM wallets
			 WHERE user_id = $1 AND (balance <> 0 OR locked_balance <> 0)
			 ORDER BY id
			 FOR UPDATE`,
			userID,
		)
		if err != nil {
			return errors.Wrap(err, "lock wallets")
		}
		if len(wallets) == 0 {
			return nil
		}

		ids := make([]int64, len(wallets))
		for i, w := range wallets {
			ids[i] = w.ID
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE wallets
			 SET balance = 0, locked_balance = 0, updated_at = NOW()
			 WHERE id = ANY($1)`,
			pq.Array(ids),
		)
		if err != nil {
			return errors.Wrap(err, "zero wallets")
		}

		batchID := uuid.NewString()
		rows := make([]History, len(wallets))
		placeholders := make([]string, len(wallets))
		args := make([]interface{}, 0, len(wallets)*10)
		for i, w := range wallets {
			meta, err := encodeMeta(map[string]interface{}{"locked_balance_cleared": w.LockedBalance})
			if err != nil {
				return err
			}
			rows[i] = History{
				UserID:         userID,
				Type:           w.Type,
				ChangeMethod:   ChangeSet,
				PointsDelta:    -w.Balance,
				BalanceBefore:  w.Balance,
				BalanceAfter:   0,
				SourceType:     SourceSystem,
				RequestBatchID: &batchID,
				Reason:         reason,
				Meta:           meta,
			}
			n := i * 10
			placeholders[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+10)
			h := rows[i]
			args = append(args, h.UserID, h.Type, h.ChangeMethod, h.PointsDelta, h.BalanceBefore,
				h.BalanceAfter, h.SourceType, batchID, h.Reason, []byte(h.Meta))
		}

		result, err := tx.QueryxContext(ctx,
			`INSERT INTO wallet_histories
			 (user_id, type, change_method, points_delta, balance_before, balance_after, source_type, request_batch_id, reason, meta)
			 VALUES `+strings.Join(placeholders, ", ")+`
			 RETURNING id, created_at`,
			args...,
		)
		if err != nil {
			return errors.Wrap(err, "insert compensating rows")
		}
		defer result.Close()

		for i := 0; result.Next(); i++ {
			if i >= len(rows) {
				break
			}
			if err := result.Scan(&rows[i].ID, &rows[i].CreatedAt); err != nil {
				return err
			}
		}
		if err := result.Err(); err != nil {
			return err
		}

		cleared = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

func (r *repository) ListHistory(ctx context.Context, userID int, walletType Type, limit, offset int) ([]History, error) {
	if limit <= 0 {
		limit = 50
	}

	history := []History{}
	var err error
	if walletType == "" {
		err = r.db.SelectContext(ctx, &history,
			`SELECT `+historyColumns+`
			 FROM wallet_histories
			 WHERE user_id = $1
			 ORDER BY id DESC
			 LIMIT $2 OFFSET $3`,
			userID, limit, offset,
		)
	} else {
		err = r.db.SelectContext(ctx, &history,
			`SELECT `+historyColumns+`
			 FROM wallet_histories
			 WHERE user_id = $1 AND type = $2
			 ORDER BY id DESC
			 LIMIT $3 OFFSET $4`,
			userID, walletType, limit, offset,
		)
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (r *repository) Reconcile(ctx context.Context, userID int) ([]Mismatch, error) {
	mismatches := []Mismatch{}
	err := r.db.SelectContext(ctx, &mismatches, `
		SELECT w.type, w.balance, COALESCE(h.balance_after, 0) AS ledger_amount
		FROM wallets w
		LEFT JOIN LATERAL (
			SELECT balance_after
			FROM wallet_histories
			WHERE user_id = w.user_id AND type = w.type
			ORDER BY id DESC
			LIMIT 1
		) h ON TRUE
		WHERE w.user_id = $1 AND w.balance <> COALESCE(h.balance_after, 0)
		ORDER BY w.type
	`, userID)
	if err != nil {
		return nil, err
	}
	return mismatches, nil
}

func encodeMeta(meta map[string]interface{}) (json.RawMessage, error) {
	if len(meta) == 0 {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, "encode ledger meta")
	}
	return b, nil
}

func sourceOrDefault(s SourceType) SourceType {
	if s == "" {
		return SourceUserAction
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
