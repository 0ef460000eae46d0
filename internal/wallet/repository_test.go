package wallet

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var walletCols = []string{"id", "user_id", "type", "balance", "locked_balance", "created_at", "updated_at"}

const (
	lockWalletSQL    = "SELECT id, user_id, type, balance, locked_balance, created_at, updated_at FROM wallets WHERE user_id = $1 AND type = $2 FOR UPDATE"
	insertWalletSQL  = "INSERT INTO wallets (user_id, type) VALUES ($1, $2) ON CONFLICT (user_id, type) DO NOTHING"
	updateBalanceSQL = "UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2"
	insertHistorySQL = "INSERT INTO wallet_histories (user_id, type, change_method, points_delta, balance_before, balance_after, source_type, request_batch_id, reason, meta) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at"
)

func setupWalletMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestGetOrCreateWallet_WhenNotExists(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	selectSQL := "SELECT id, user_id, type, balance, locked_balance, created_at, updated_at FROM wallets WHERE user_id = $1 AND type = $2"

	mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
		WithArgs(10, "regular_coin").
		WillReturnRows(sqlmock.NewRows(walletCols))

	mock.ExpectExec(regexp.QuoteMeta(insertWalletSQL)).
		WithArgs(10, "regular_coin").
		WillReturnResult(sqlmock.NewResult(5, 1))

	mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
		WithArgs(10, "regular_coin").
		WillReturnRows(sqlmock.NewRows(walletCols).AddRow(5, 10, "regular_coin", 0, 0, time.Now(), time.Now()))

	w, err := repo.GetOrCreateWallet(context.Background(), 10, TypeRegularCoin)
	require.NoError(t, err)
	assert.Equal(t, int64(5), w.ID)
	assert.Equal(t, int64(0), w.Balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateWallet_InvalidType(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	_, err := repo.GetOrCreateWallet(context.Background(), 10, Type("gems"))
	assert.ErrorIs(t, err, ErrInvalidWalletType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredit_CreatesWalletLazily(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockWalletSQL)).
		WithArgs(7, "regular_coin").
		WillReturnRows(sqlmock.NewRows(walletCols))
	mock.ExpectExec(regexp.QuoteMeta(insertWalletSQL)).
		WithArgs(7, "regular_coin").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectQuery(regexp.QuoteMeta(lockWalletSQL)).
		WithArgs(7, "regular_coin").
		WillReturnRows(sqlmock.NewRows(walletCols).AddRow(3, 7, "regular_coin", 0, 0, now, now))
	mock.ExpectExec(regexp.QuoteMeta(updateBalanceSQL)).
		WithArgs(500, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(insertHistorySQL)).
		WithArgs(7, "regular_coin", "increment", 500, 0, 500, "user_action", nil, "Coin purchase",
			[]byte(`{"purchase_request_id":"pr-1"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(41, now))
	mock.ExpectCommit()

	h, err := repo.Credit(context.Background(), 7, TypeRegularCoin, 500, Entry{
		Reason: "Coin purchase",
		Meta:   map[string]interface{}{"purchase_request_id": "pr-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(41), h.ID)
	assert.Equal(t, int64(500), h.PointsDelta)
	assert.Equal(t, int64(0), h.BalanceBefore)
	assert.Equal(t, int64(500), h.BalanceAfter)
	assert.Equal(t, SourceUserAction, h.SourceType)
	assert.Nil(t, h.RequestBatchID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_InsufficientBalance(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockWalletSQL)).
		WithArgs(20, "bonus_coin").
		WillReturnRows(sqlmock.NewRows(walletCols).AddRow(9, 20, "bonus_coin", 100, 50, time.Now(), time.Now()))
	mock.ExpectRollback()

	_, err := repo.Debit(context.Background(), 20, TypeBonusCoin, 60, Entry{Reason: "Card pack"})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_Success(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockWalletSQL)).
		WithArgs(20, "regular_coin").
		WillReturnRows(sqlmock.NewRows(walletCols).AddRow(9, 20, "regular_coin", 1000, 0, now, now))
	mock.ExpectExec(regexp.QuoteMeta(updateBalanceSQL)).
		WithArgs(700, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(insertHistorySQL)).
		WithArgs(20, "regular_coin", "decrement", -300, 1000, 700, "user_action", nil, "Card pack", []byte(`{}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(42, now))
	mock.ExpectCommit()

	h, err := repo.Debit(context.Background(), 20, TypeRegularCoin, 300, Entry{Reason: "Card pack"})
	require.NoError(t, err)
	assert.Equal(t, int64(-300), h.PointsDelta)
	assert.Equal(t, h.BalanceBefore+h.PointsDelta, h.BalanceAfter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjust_InvalidWalletTypeRollsBack(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.Adjust(context.Background(), 1, Type("gems"), ChangeIncrement, 10, Entry{})
	assert.ErrorIs(t, err, ErrInvalidWalletType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearBalance_ZeroesEveryWallet(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, user_id, type, balance, locked_balance, created_at, updated_at FROM wallets WHERE user_id = $1 AND (balance <> 0 OR locked_balance <> 0) ORDER BY id FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(walletCols).
			AddRow(11, 5, "regular_coin", 1200, 0, now, now).
			AddRow(12, 5, "bonus_coin", 300, 100, now, now))
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE wallets SET balance = 0, locked_balance = 0, updated_at = NOW() WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO wallet_histories (user_id, type, change_method, points_delta, balance_before, balance_after, source_type, request_batch_id, reason, meta) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10), ($11, $12, $13, $14, $15, $16, $17, $18, $19, $20) RETURNING id, created_at")).
		WithArgs(
			5, "regular_coin", "set", -1200, 1200, 0, "system", sqlmock.AnyArg(), "account deleted", []byte(`{"locked_balance_cleared":0}`),
			5, "bonus_coin", "set", -300, 300, 0, "system", sqlmock.AnyArg(), "account deleted", []byte(`{"locked_balance_cleared":100}`),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(100, now).AddRow(101, now))
	mock.ExpectCommit()

	rows, err := repo.ClearBalance(context.Background(), 5, "account deleted")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(100), rows[0].ID)
	assert.Equal(t, int64(-1200), rows[0].PointsDelta)
	assert.Equal(t, int64(101), rows[1].ID)
	assert.Equal(t, int64(-300), rows[1].PointsDelta)
	for _, h := range rows {
		assert.Equal(t, int64(0), h.BalanceAfter)
		assert.Equal(t, SourceSystem, h.SourceType)
		assert.Equal(t, ChangeSet, h.ChangeMethod)
		require.NotNil(t, h.RequestBatchID)
	}
	assert.Equal(t, *rows[0].RequestBatchID, *rows[1].RequestBatchID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearBalance_NothingToClear(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM wallets WHERE user_id = $1 AND (balance <> 0 OR locked_balance <> 0)")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(walletCols))
	mock.ExpectCommit()

	rows, err := repo.ClearBalance(context.Background(), 5, "account deleted")
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListHistory_FiltersByType(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	cols := []string{"id", "user_id", "type", "change_method", "points_delta", "balance_before", "balance_after",
		"source_type", "request_batch_id", "reason", "meta", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM wallet_histories WHERE user_id = $1 AND type = $2 ORDER BY id DESC LIMIT $3 OFFSET $4")).
		WithArgs(3, "bonus_coin", 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(8, 3, "bonus_coin", "increment", 50, 0, 50, "admin_action", nil, "promo", []byte(`{}`), time.Now()))

	history, err := repo.ListHistory(context.Background(), 3, TypeBonusCoin, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, SourceAdminAction, history[0].SourceType)
	assert.JSONEq(t, `{}`, string(history[0].Meta))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_ReportsMismatches(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN LATERAL")).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"type", "balance", "ledger_amount"}).AddRow("regular_coin", 900, 1000))

	mismatches, err := repo.Reconcile(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, int64(1000), mismatches[0].LedgerAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextBalance(t *testing.T) {
	w := &Wallet{Balance: 100, LockedBalance: 30}

	tests := []struct {
		name    string
		method  ChangeMethod
		amount  int64
		want    int64
		wantErr error
	}{
		{"increment", ChangeIncrement, 50, 150, nil},
		{"increment zero", ChangeIncrement, 0, 0, ErrInvalidAmount},
		{"decrement within available", ChangeDecrement, 70, 30, nil},
		{"decrement into locked", ChangeDecrement, 71, 0, ErrInsufficientBalance},
		{"decrement negative", ChangeDecrement, -1, 0, ErrInvalidAmount},
		{"set", ChangeSet, 40, 40, nil},
		{"set below locked", ChangeSet, 20, 0, ErrInsufficientBalance},
		{"unknown", ChangeMethod("multiply"), 2, 0, ErrInvalidChangeMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextBalance(w, tt.method, tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredit_LockFailureKeepsCause(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	errConnReset := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockWalletSQL)).
		WithArgs(10, "regular_coin").
		WillReturnError(errConnReset)
	mock.ExpectRollback()

	_, err := repo.Credit(context.Background(), 10, TypeRegularCoin, 100, Entry{Reason: "top up"})
	require.Error(t, err)
	assert.Equal(t, errConnReset, errors.Cause(err))
	assert.EqualError(t, err, "lock wallet: connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}
