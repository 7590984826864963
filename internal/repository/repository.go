package repository

import (
	"context"
	"time"

	"bank-ledger/internal/model"
)

// UserStore хранит пользователей и реферальные связи
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetReferrer(ctx context.Context, referredID, referrerID int64) error
	CountReferrals(ctx context.Context, userID int64) (int, error)
}

// AccountStore - единственный владелец строк bank_accounts и saving_accounts
type AccountStore interface {
	NextAccountNumber(ctx context.Context, paymentSystem string) (string, error)
	CreateAccount(ctx context.Context, account *model.BankAccount) error
	GetAccount(ctx context.Context, id int64) (*model.BankAccount, error)
	GetUserAccounts(ctx context.Context, userID int64) ([]model.BankAccount, error)
	AddAccountOwner(ctx context.Context, accountID, userID int64) error
	GetAccountOwners(ctx context.Context, accountID int64) ([]int64, error)
	UpdateAccountStatus(ctx context.Context, id int64, from, to model.AccountStatus) error
	GetDueSavingAccounts(ctx context.Context, asOf time.Time) ([]model.SavingAccount, error)
	AdvanceInterestDate(ctx context.Context, accountID int64, expected, next time.Time) error
}

// TransactionStore - журнал операций. Удаления нет намеренно.
type TransactionStore interface {
	// CommitPosting атомарно списывает, зачисляет и пишет completed-транзакцию
	CommitPosting(ctx context.Context, posting *model.Posting) error
	// RecordTransaction пишет транзакцию без изменения балансов (failed, pending)
	RecordTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	GetCompletedByKey(ctx context.Context, key string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int64, from, to model.TransactionStatus) error
	GetUserActivity(ctx context.Context, userID int64) (*model.UserActivity, error)
}

// ScheduleStore хранит шаблоны регулярных переводов
type ScheduleStore interface {
	CreateScheduledTransfer(ctx context.Context, st *model.ScheduledTransfer) error
	GetScheduledTransfer(ctx context.Context, id int64) (*model.ScheduledTransfer, error)
	GetAccountScheduledTransfers(ctx context.Context, accountID int64) ([]model.ScheduledTransfer, error)
	GetDueScheduledTransfers(ctx context.Context, asOf time.Time) ([]model.ScheduledTransfer, error)
	AdvanceScheduledTransfer(ctx context.Context, id int64, expected, next time.Time, active bool) error
	DeactivateExpiredTransfers(ctx context.Context, asOf time.Time) (int64, error)
}

// AchievementStore выдает достижения. Повторная выдача - no-op.
type AchievementStore interface {
	GrantAchievement(ctx context.Context, userID int64, name string) (bool, error)
	GetUserAchievements(ctx context.Context, userID int64) ([]model.UserAchievement, error)
}

type Store interface {
	UserStore
	AccountStore
	TransactionStore
	ScheduleStore
	AchievementStore
}
