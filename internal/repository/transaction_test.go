package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func transferPosting(amount string) *model.Posting {
	sender, receiver := int64(2), int64(1)
	return &model.Posting{
		Transaction: &model.Transaction{
			SenderAccountID:   &sender,
			ReceiverAccountID: &receiver,
			Amount:            decimal.RequireFromString(amount),
			Currency:          "USD",
			Type:              model.TransactionTypeTransfer,
			Status:            model.TransactionStatusPending,
		},
		SenderFloor: decimal.Zero,
	}
}

func lockedRows(statuses ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"bank_account_id", "status"})
	for i, status := range statuses {
		rows.AddRow(i+1, status)
	}
	return rows
}

func TestCommitPosting(t *testing.T) {
	now := time.Now()

	testCases := []struct {
		name       string
		posting    *model.Posting
		mockSetup  func(mock sqlmock.Sqlmock)
		assertFunc func(t *testing.T, posting *model.Posting, err error)
	}{
		{
			name:    "success",
			posting: transferPosting("60"),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '2000ms'")).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT bank_account_id, status FROM bank_accounts").
					WithArgs(pq.Array([]int64{1, 2})).
					WillReturnRows(lockedRows("active", "active"))
				mock.ExpectExec(regexp.QuoteMeta("SET balance = balance - $1")).
					WithArgs(sqlmock.AnyArg(), int64(2), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("SET balance = balance + $1")).
					WithArgs(sqlmock.AnyArg(), int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery("INSERT INTO transactions").
					WillReturnRows(sqlmock.NewRows([]string{"transaction_id", "created_at", "updated_at"}).AddRow(10, now, now))
				mock.ExpectCommit()
			},
			assertFunc: func(t *testing.T, posting *model.Posting, err error) {
				require.NoError(t, err)
				assert.Equal(t, int64(10), posting.Transaction.ID)
				assert.Equal(t, model.TransactionStatusCompleted, posting.Transaction.Status)
			},
		},
		{
			name:    "insufficient funds rolls back",
			posting: transferPosting("60"),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT bank_account_id, status FROM bank_accounts").
					WillReturnRows(lockedRows("active", "active"))
				mock.ExpectExec(regexp.QuoteMeta("SET balance = balance - $1")).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, posting *model.Posting, err error) {
				assert.ErrorIs(t, err, model.ErrInsufficientFunds)
				assert.Zero(t, posting.Transaction.ID)
			},
		},
		{
			name:    "missing account",
			posting: transferPosting("1"),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT bank_account_id, status FROM bank_accounts").
					WillReturnRows(lockedRows("active"))
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, _ *model.Posting, err error) {
				assert.ErrorIs(t, err, model.ErrNotFound)
			},
		},
		{
			name:    "lock timeout is contention",
			posting: transferPosting("1"),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT bank_account_id, status FROM bank_accounts").
					WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, _ *model.Posting, err error) {
				assert.ErrorIs(t, err, model.ErrContention)
				assert.True(t, model.IsRetryable(err))
			},
		},
		{
			name:    "closed receiver",
			posting: transferPosting("5"),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT bank_account_id, status FROM bank_accounts").
					WillReturnRows(lockedRows("closed", "active"))
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, _ *model.Posting, err error) {
				assert.ErrorIs(t, err, model.ErrAccountState)
				assert.Equal(t, model.ReasonAccountBlocked, model.ReasonOf(err))
			},
		},
		{
			name:    "sender blocked after service check",
			posting: transferPosting("5"),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT bank_account_id, status FROM bank_accounts").
					WillReturnRows(lockedRows("active", "blocked"))
				mock.ExpectRollback()
			},
			assertFunc: func(t *testing.T, _ *model.Posting, err error) {
				assert.ErrorIs(t, err, model.ErrAccountState)
				assert.NotErrorIs(t, err, model.ErrInsufficientFunds)
				assert.Equal(t, model.ReasonAccountBlocked, model.ReasonOf(err))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			logger, _ := test.NewNullLogger()
			repo := NewTransactionRepository(db, 2*time.Second, logger)

			tc.mockSetup(mock)
			err := repo.CommitPosting(context.Background(), tc.posting)
			tc.assertFunc(t, tc.posting, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCommitPostingSettlesPendingRow(t *testing.T) {
	db, mock := newMockDB(t)
	logger, _ := test.NewNullLogger()
	repo := NewTransactionRepository(db, time.Second, logger)

	posting := transferPosting("5")
	posting.Transaction.ID = 33

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '1000ms'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bank_account_id, status FROM bank_accounts").
		WillReturnRows(lockedRows("active", "active"))
	mock.ExpectExec(regexp.QuoteMeta("SET balance = balance - $1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET balance = balance + $1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE transaction_id = $3 AND status = 'pending'")).
		WithArgs(model.TransactionStatusCompleted, sqlmock.AnyArg(), int64(33)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.CommitPosting(context.Background(), posting)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCompletedByKey(t *testing.T) {
	db, mock := newMockDB(t)
	logger, _ := test.NewNullLogger()
	repo := NewTransactionRepository(db, time.Second, logger)
	now := time.Now()

	columns := []string{
		"transaction_id", "sender_account_id", "receiver_account_id", "amount", "converted_amount",
		"currency", "description", "type", "status", "failure_reason", "idempotency_key", "created_at", "updated_at",
	}
	mock.ExpectQuery("FROM transactions").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(5, nil, 3, "12.50", "937.50", "USD", "", "deposit", "completed", nil, "order-1", now, now))
	mock.ExpectQuery("FROM transactions").
		WithArgs("order-2").
		WillReturnRows(sqlmock.NewRows(columns))

	txn, err := repo.GetCompletedByKey(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), txn.ID)
	assert.Nil(t, txn.SenderAccountID)
	require.NotNil(t, txn.ReceiverAccountID)
	assert.Equal(t, int64(3), *txn.ReceiverAccountID)
	assert.True(t, txn.Credited().Equal(decimal.RequireFromString("937.5")))
	assert.Equal(t, model.TransactionTypeDeposit, txn.Type)

	_, err = repo.GetCompletedByKey(context.Background(), "order-2")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
