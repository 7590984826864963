package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/model"
)

func TestAdvanceScheduledTransfer(t *testing.T) {
	expected := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	next := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		mockSetup  func(mock sqlmock.Sqlmock)
		assertFunc func(t *testing.T, err error)
	}{
		{
			name: "advanced",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("^UPDATE scheduled_transfers").
					WithArgs(next, true, int64(8), expected).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			assertFunc: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "already advanced by another sweep",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("^UPDATE scheduled_transfers").
					WithArgs(next, true, int64(8), expected).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			assertFunc: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, model.ErrConflict)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			logger, _ := test.NewNullLogger()
			repo := NewScheduleRepository(db, logger)

			tc.mockSetup(mock)
			tc.assertFunc(t, repo.AdvanceScheduledTransfer(context.Background(), 8, expected, next, true))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeactivateExpiredTransfers(t *testing.T) {
	db, mock := newMockDB(t)
	logger, _ := test.NewNullLogger()
	repo := NewScheduleRepository(db, logger)
	asOf := time.Date(2024, 7, 10, 15, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("end_date IS NOT NULL AND end_date < $1")).
		WithArgs(time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeactivateExpiredTransfers(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMockDB(t)
	logger, _ := test.NewNullLogger()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db, logger))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))
	assert.Error(t, Migrate(context.Background(), db, logger))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDueScheduledTransfersSkipsExpired(t *testing.T) {
	db, mock := newMockDB(t)
	logger, _ := test.NewNullLogger()
	repo := NewScheduleRepository(db, logger)

	mock.ExpectQuery(regexp.QuoteMeta("AND (end_date IS NULL OR end_date >= $1)")).
		WithArgs(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"scheduled_transfer_id"}))

	due, err := repo.GetDueScheduledTransfers(context.Background(), time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.NoError(t, mock.ExpectationsWereMet())
}
