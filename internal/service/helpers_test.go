package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/model"
	"bank-ledger/internal/repository"
)

type testEnv struct {
	store        *repository.MemoryStore
	bus          *EventBus
	locker       *AccountLocker
	ledger       *LedgerService
	accounts     *AccountService
	achievements *AchievementService
	scheduler    *SchedulerService
	interest     *InterestService
	analytics    *AnalyticService
	notifier     *fakeNotifier
	logger       *logrus.Logger
	hook         *test.Hook

	userSeq int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store := repository.NewMemoryStore()
	bus := NewEventBus(logger)
	locker := NewAccountLocker(200 * time.Millisecond)
	notifier := &fakeNotifier{}
	retrier := NewRetrier(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}, logger)

	ledger := NewLedgerService(store, store, locker, NewStaticRates(nil), bus, logger)
	achievements := NewAchievementService(store, store, store, store, notifier, logger)
	bus.Subscribe(achievements.Handle)

	return &testEnv{
		store:        store,
		bus:          bus,
		locker:       locker,
		ledger:       ledger,
		accounts:     NewAccountService(store, store, ledger, locker, bus, logger),
		achievements: achievements,
		scheduler:    NewSchedulerService(store, store, store, ledger, retrier, notifier, logger),
		interest:     NewInterestService(store, ledger, retrier, logger),
		analytics:    NewAnalyticService(store, store, logger),
		notifier:     notifier,
		logger:       logger,
		hook:         hook,
	}
}

func (e *testEnv) createUser(t *testing.T) *model.User {
	t.Helper()
	e.userSeq++
	user, err := e.accounts.CreateUser(context.Background(), model.CreateUserRequest{
		FirstName: "Anna",
		LastName:  fmt.Sprintf("Petrova%d", e.userSeq),
		Email:     fmt.Sprintf("anna%d@example.com", e.userSeq),
		Phone:     fmt.Sprintf("+7900000%04d", e.userSeq),
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) openAccount(t *testing.T, owner *model.User, currency, deposit string) *model.BankAccount {
	t.Helper()
	req := model.CreateAccountRequest{
		Currency:       currency,
		PaymentSystem:  "VISA",
		InitialDeposit: decimal.RequireFromString(deposit),
	}
	if owner != nil {
		req.OwnerID = &owner.ID
	}
	account, err := e.accounts.CreateAccount(context.Background(), req)
	require.NoError(t, err)
	return account
}

func (e *testEnv) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	account, err := e.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func (e *testEnv) transfer(from, to int64, amount, key string) (*model.Transaction, error) {
	return e.ledger.Submit(context.Background(), model.TransactionRequest{
		SenderAccountID:   &from,
		ReceiverAccountID: &to,
		Amount:            decimal.RequireFromString(amount),
		Type:              model.TransactionTypeTransfer,
		IdempotencyKey:    key,
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeNotifier struct {
	mu           sync.Mutex
	achievements []string
	failures     []int64
}

func (f *fakeNotifier) NotifyAchievement(_ context.Context, user *model.User, achievement string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.achievements = append(f.achievements, fmt.Sprintf("%d:%s", user.ID, achievement))
	return nil
}

func (f *fakeNotifier) NotifyScheduledTransferFailed(_ context.Context, user *model.User, st *model.ScheduledTransfer, _ time.Time, _ error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, st.ID)
	return nil
}

func (f *fakeNotifier) achievementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.achievements)
}
