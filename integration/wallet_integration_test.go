package integration_test

import (
	"context"
	"testing"

	"cardshop/internal/events"
	"cardshop/internal/user"
	"cardshop/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletLedger_Integration(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	repo := wallet.NewRepository(database)
	userID := createTestUser(t, database, "wallet@test.com", "Wallet User")

	w, err := repo.GetOrCreateWallet(ctx, userID, wallet.TypeRegularCoin)
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Balance)

	_, err = repo.Credit(ctx, userID, wallet.TypeRegularCoin, 700, wallet.Entry{Reason: "top up"})
	require.NoError(t, err)

	h, err := repo.Debit(ctx, userID, wallet.TypeRegularCoin, 200, wallet.Entry{Reason: "card pack"})
	require.NoError(t, err)
	assert.Equal(t, int64(700), h.BalanceBefore)
	assert.Equal(t, int64(500), h.BalanceAfter)

	_, err = repo.Debit(ctx, userID, wallet.TypeRegularCoin, 10000, wallet.Entry{Reason: "too much"})
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	history, err := repo.ListHistory(ctx, userID, wallet.TypeRegularCoin, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	mismatches, err := repo.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestSoftDeleteClearsBalance_Integration(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	wallets := wallet.NewRepository(database)
	users := user.NewService(user.NewRepository(database), wallets, nopMailer{}, events.NopPublisher{})
	userID := createTestUser(t, database, "leaving@test.com", "Leaving")

	_, err := wallets.Credit(ctx, userID, wallet.TypeRegularCoin, 300, wallet.Entry{Reason: "top up"})
	require.NoError(t, err)
	_, err = wallets.Credit(ctx, userID, wallet.TypeBonusCoin, 40, wallet.Entry{Reason: "campaign"})
	require.NoError(t, err)

	res, err := users.SoftDelete(ctx, userID)
	require.NoError(t, err)
	require.Len(t, res.Cleared, 2)
	require.NotNil(t, res.Cleared[0].RequestBatchID)
	assert.Equal(t, *res.Cleared[0].RequestBatchID, *res.Cleared[1].RequestBatchID)

	list, err := wallets.ListWallets(ctx, userID)
	require.NoError(t, err)
	for _, w := range list {
		assert.Equal(t, int64(0), w.Balance, string(w.Type))
	}

	// A retried delete finds nothing left to clear.
	res, err = users.SoftDelete(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, res.Cleared)

	_, err = users.GetByID(ctx, userID)
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}
