package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/model"
)

func TestInterest(t *testing.T) {
	testCases := []struct {
		name    string
		balance string
		rate    string
		days    int
		want    string
	}{
		{name: "month at 1.5%", balance: "10000", rate: "1.5", days: 30, want: "12.33"},
		{name: "full year", balance: "1000", rate: "5", days: 365, want: "50"},
		{name: "zero rate", balance: "1000", rate: "0", days: 30, want: "0"},
		{name: "rounds half up", balance: "100", rate: "1.825", days: 1, want: "0.01"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Interest(dec(tc.balance), dec(tc.rate), tc.days)
			assert.True(t, got.Equal(dec(tc.want)), "got %s, want %s", got, tc.want)
		})
	}
}

func TestAccrueDueCreditsInterestAndAdvancesDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)

	saving, err := env.accounts.OpenSavingAccount(ctx, model.OpenSavingRequest{
		CreateAccountRequest: model.CreateAccountRequest{OwnerID: &user.ID, Currency: "USD", InitialDeposit: dec("10000")},
		InterestRate:         dec("1.5"),
		InterestPeriod:       30,
	})
	require.NoError(t, err)
	due := saving.Saving.NextInterestDate

	// до наступления даты ничего не начисляется
	report, err := env.interest.AccrueDue(ctx, due.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)

	report, err = env.interest.AccrueDue(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
	assert.True(t, env.balance(t, saving.ID).Equal(dec("10012.33")))

	account, err := env.store.GetAccount(ctx, saving.ID)
	require.NoError(t, err)
	assert.Equal(t, due.AddDate(0, 0, 30), account.Saving.NextInterestDate)

	// повторный проход за ту же дату не начисляет дважды
	report, err = env.interest.AccrueDue(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	assert.True(t, env.balance(t, saving.ID).Equal(dec("10012.33")))

	list, err := env.ledger.ListTransactions(ctx, model.TransactionFilter{AccountID: saving.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.TransactionTypeInterest, list[0].Type)
}

func TestAccrueDueZeroInterestStillAdvances(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t)

	saving, err := env.accounts.OpenSavingAccount(ctx, model.OpenSavingRequest{
		CreateAccountRequest: model.CreateAccountRequest{OwnerID: &user.ID, Currency: "USD"},
		InterestRate:         dec("3"),
		InterestPeriod:       7,
	})
	require.NoError(t, err)
	due := saving.Saving.NextInterestDate

	report, err := env.interest.AccrueDue(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	account, err := env.store.GetAccount(ctx, saving.ID)
	require.NoError(t, err)
	assert.Equal(t, due.AddDate(0, 0, 7), account.Saving.NextInterestDate)
	assert.True(t, account.Balance.IsZero())
}
