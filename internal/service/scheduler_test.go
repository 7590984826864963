package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/model"
)

func TestRunDueTransfersMonthlyClampsToMonthEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)
	from := env.openAccount(t, user, "USD", "1000")
	to := env.openAccount(t, user, "USD", "0")

	st, err := env.scheduler.CreateScheduledTransfer(ctx, model.CreateScheduledTransferRequest{
		SenderAccountID:   from.ID,
		ReceiverAccountID: to.ID,
		Amount:            dec("100"),
		Frequency:         model.FrequencyMonthly,
		StartDate:         date("2024-01-31"),
	})
	require.NoError(t, err)
	assert.Equal(t, date("2024-01-31"), st.NextOccurrenceDate)

	report, err := env.scheduler.RunDueTransfers(ctx, date("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)

	st, err = env.scheduler.GetScheduledTransfer(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2024-02-29"), st.NextOccurrenceDate)

	// пропущенные вхождения догоняются за один проход
	report, err = env.scheduler.RunDueTransfers(ctx, date("2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Executed)

	st, err = env.scheduler.GetScheduledTransfer(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2024-04-30"), st.NextOccurrenceDate)
	assert.True(t, env.balance(t, from.ID).Equal(dec("700")))
	assert.True(t, env.balance(t, to.ID).Equal(dec("300")))
}

func TestRunDueTransfersIsIdempotentPerOccurrence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)
	from := env.openAccount(t, user, "USD", "100")
	to := env.openAccount(t, user, "USD", "0")

	_, err := env.scheduler.CreateScheduledTransfer(ctx, model.CreateScheduledTransferRequest{
		SenderAccountID:   from.ID,
		ReceiverAccountID: to.ID,
		Amount:            dec("10"),
		Frequency:         model.FrequencyDaily,
		StartDate:         date("2024-05-01"),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := env.scheduler.RunDueTransfers(ctx, date("2024-05-01"))
		require.NoError(t, err)
	}
	assert.True(t, env.balance(t, to.ID).Equal(dec("10")))
}

func TestRunDueTransfersFailureKeepsDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)
	from := env.openAccount(t, user, "USD", "5")
	to := env.openAccount(t, user, "USD", "0")

	st, err := env.scheduler.CreateScheduledTransfer(ctx, model.CreateScheduledTransferRequest{
		SenderAccountID:   from.ID,
		ReceiverAccountID: to.ID,
		Amount:            dec("10"),
		Frequency:         model.FrequencyWeekly,
		StartDate:         date("2024-06-03"),
	})
	require.NoError(t, err)

	report, err := env.scheduler.RunDueTransfers(ctx, date("2024-06-03"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Executed)
	assert.Equal(t, []int64{st.ID}, env.notifier.failures)

	stored, err := env.scheduler.GetScheduledTransfer(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2024-06-03"), stored.NextOccurrenceDate)
	assert.True(t, stored.IsActive)

	failed, err := env.ledger.ListTransactions(ctx, model.TransactionFilter{AccountID: from.ID, Status: model.TransactionStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, model.ReasonInsufficientFunds, failed[0].FailureReason)

	// после пополнения то же вхождение проходит с тем же ключом
	fromID := from.ID
	_, err = env.ledger.Submit(ctx, model.TransactionRequest{ReceiverAccountID: &fromID, Amount: dec("20"), Type: model.TransactionTypeDeposit})
	require.NoError(t, err)

	report, err = env.scheduler.RunDueTransfers(ctx, date("2024-06-03"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)

	stored, err = env.scheduler.GetScheduledTransfer(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2024-06-10"), stored.NextOccurrenceDate)
	assert.True(t, env.balance(t, to.ID).Equal(dec("10")))
}

func TestRunDueTransfersStopsAfterEndDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)
	from := env.openAccount(t, user, "USD", "100")
	to := env.openAccount(t, user, "USD", "0")

	end := date("2024-07-02")
	st, err := env.scheduler.CreateScheduledTransfer(ctx, model.CreateScheduledTransferRequest{
		SenderAccountID:   from.ID,
		ReceiverAccountID: to.ID,
		Amount:            dec("1"),
		Frequency:         model.FrequencyDaily,
		StartDate:         date("2024-07-01"),
		EndDate:           &end,
	})
	require.NoError(t, err)

	report, err := env.scheduler.RunDueTransfers(ctx, end)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Executed)

	stored, err := env.scheduler.GetScheduledTransfer(ctx, st.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.True(t, env.balance(t, to.ID).Equal(dec("2")))

	report, err = env.scheduler.RunDueTransfers(ctx, date("2024-07-20"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
}

func TestRunDueTransfersAfterEndDateExecutesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)
	from := env.openAccount(t, user, "USD", "100")
	to := env.openAccount(t, user, "USD", "0")

	end := date("2024-03-01")
	st, err := env.scheduler.CreateScheduledTransfer(ctx, model.CreateScheduledTransferRequest{
		SenderAccountID:   from.ID,
		ReceiverAccountID: to.ID,
		Amount:            dec("5"),
		Frequency:         model.FrequencyWeekly,
		StartDate:         date("2024-02-15"),
		EndDate:           &end,
	})
	require.NoError(t, err)

	report, err := env.scheduler.RunDueTransfers(ctx, date("2024-03-05"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.Equal(t, 0, report.Executed)

	stored, err := env.scheduler.GetScheduledTransfer(ctx, st.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, date("2024-02-15"), stored.NextOccurrenceDate)
	assert.True(t, env.balance(t, to.ID).IsZero())
	assert.True(t, env.balance(t, from.ID).Equal(dec("100")))
}

func TestCreateScheduledTransferValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)
	from := env.openAccount(t, user, "USD", "100")
	to := env.openAccount(t, user, "USD", "0")
	before := date("2024-01-01")

	cases := map[string]model.CreateScheduledTransferRequest{
		"zero amount":      {SenderAccountID: from.ID, ReceiverAccountID: to.ID, Amount: dec("0"), Frequency: model.FrequencyDaily},
		"bad frequency":    {SenderAccountID: from.ID, ReceiverAccountID: to.ID, Amount: dec("1"), Frequency: "hourly"},
		"same account":     {SenderAccountID: from.ID, ReceiverAccountID: from.ID, Amount: dec("1"), Frequency: model.FrequencyDaily},
		"end before start": {SenderAccountID: from.ID, ReceiverAccountID: to.ID, Amount: dec("1"), Frequency: model.FrequencyDaily, StartDate: date("2024-02-01"), EndDate: &before},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.scheduler.CreateScheduledTransfer(ctx, req)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}

	_, err := env.scheduler.CreateScheduledTransfer(ctx, model.CreateScheduledTransferRequest{
		SenderAccountID: from.ID, ReceiverAccountID: 999, Amount: dec("1"), Frequency: model.FrequencyDaily,
	})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRunDueTransfersRejectsOverlappingSweep(t *testing.T) {
	env := newTestEnv(t)

	env.scheduler.sweep.Lock()
	_, err := env.scheduler.RunDueTransfers(context.Background(), date("2024-01-01"))
	env.scheduler.sweep.Unlock()

	assert.ErrorIs(t, err, ErrSweepInProgress)
}
