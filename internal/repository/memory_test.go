package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/model"
)

func seedAccounts(t *testing.T, store *MemoryStore, balances ...string) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, 0, len(balances))
	for _, b := range balances {
		number, err := store.NextAccountNumber(ctx, "VISA")
		require.NoError(t, err)
		account := &model.BankAccount{
			AccountNumber: number,
			Balance:       decimal.RequireFromString(b),
			Currency:      "USD",
			Status:        model.AccountStatusActive,
			PaymentSystem: "VISA",
		}
		require.NoError(t, store.CreateAccount(ctx, account))
		ids = append(ids, account.ID)
	}
	return ids
}

func memoryPosting(from, to int64, amount, key string) *model.Posting {
	txn := &model.Transaction{
		SenderAccountID:   &from,
		ReceiverAccountID: &to,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USD",
		Type:              model.TransactionTypeTransfer,
		Status:            model.TransactionStatusPending,
	}
	if key != "" {
		txn.IdempotencyKey = &key
	}
	return &model.Posting{Transaction: txn}
}

func TestMemoryStoreCommitPosting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedAccounts(t, store, "100", "0")

	require.NoError(t, store.CommitPosting(ctx, memoryPosting(ids[0], ids[1], "40", "k1")))

	err := store.CommitPosting(ctx, memoryPosting(ids[0], ids[1], "40", "k1"))
	assert.ErrorIs(t, err, model.ErrConflict)

	err = store.CommitPosting(ctx, memoryPosting(ids[0], ids[1], "60.01", ""))
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	floor := memoryPosting(ids[0], ids[1], "20", "")
	floor.SenderFloor = decimal.NewFromInt(50)
	assert.ErrorIs(t, store.CommitPosting(ctx, floor), model.ErrInsufficientFunds)

	sender, err := store.GetAccount(ctx, ids[0])
	require.NoError(t, err)
	receiver, err := store.GetAccount(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, sender.Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, receiver.Balance.Equal(decimal.NewFromInt(40)))

	txn, err := store.GetCompletedByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, txn.Status)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedAccounts(t, store, "10")

	account, err := store.GetAccount(ctx, ids[0])
	require.NoError(t, err)
	account.Balance = decimal.NewFromInt(1_000_000)

	again, err := store.GetAccount(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(10)))
}

func TestMemoryStorePendingRecordAndSettle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedAccounts(t, store, "10", "0")

	posting := memoryPosting(ids[0], ids[1], "5", "")
	require.NoError(t, store.RecordTransaction(ctx, posting.Transaction))
	require.NotZero(t, posting.Transaction.ID)

	require.NoError(t, store.CommitPosting(ctx, posting))
	assert.ErrorIs(t, store.CommitPosting(ctx, posting), model.ErrConflict)

	err := store.UpdateTransactionStatus(ctx, posting.Transaction.ID, model.TransactionStatusPending, model.TransactionStatusCancelled)
	assert.ErrorIs(t, err, model.ErrConflict)

	list, err := store.ListTransactions(ctx, model.TransactionFilter{AccountID: ids[1]})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.TransactionStatusCompleted, list[0].Status)
}

func TestMemoryStoreGrantAchievementOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user := &model.User{FirstName: "A", LastName: "B", Email: "a@b.cd", Phone: "+70000000000"}
	require.NoError(t, store.CreateUser(ctx, user))

	granted, err := store.GrantAchievement(ctx, user.ID, model.AchievementFirstTransaction)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = store.GrantAchievement(ctx, user.ID, model.AchievementFirstTransaction)
	require.NoError(t, err)
	assert.False(t, granted)

	list, err := store.GetUserAchievements(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.AchievementFirstTransaction, list[0].Name)
}

func TestMemoryStoreCommitPostingBlockedSender(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := seedAccounts(t, store, "100", "0")

	require.NoError(t, store.UpdateAccountStatus(ctx, ids[0], model.AccountStatusActive, model.AccountStatusBlocked))

	err := store.CommitPosting(ctx, memoryPosting(ids[0], ids[1], "10", ""))
	assert.ErrorIs(t, err, model.ErrAccountState)
	assert.NotErrorIs(t, err, model.ErrInsufficientFunds)
	assert.Equal(t, model.ReasonAccountBlocked, model.ReasonOf(err))

	sender, err := store.GetAccount(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, sender.Balance.Equal(decimal.NewFromInt(100)))
}
