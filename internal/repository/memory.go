package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bank-ledger/internal/model"
)

// MemoryStore - хранилище в памяти для тестов и локального запуска.
// Все операции сериализованы одним мьютексом.
type MemoryStore struct {
	mu sync.Mutex

	users         map[int64]*model.User
	accounts      map[int64]*model.BankAccount
	owners        map[int64]map[int64]bool // account -> users
	lastNumbers   map[string]int64
	transactions  map[int64]*model.Transaction
	completedKeys map[string]int64
	scheduled     map[int64]*model.ScheduledTransfer
	achievements  map[string]int64
	granted       map[int64]map[int64]time.Time // user -> achievement -> achieved_at

	nextUserID        int64
	nextAccountID     int64
	nextTransactionID int64
	nextScheduledID   int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]*model.User),
		accounts:      make(map[int64]*model.BankAccount),
		owners:        make(map[int64]map[int64]bool),
		lastNumbers:   map[string]int64{"VISA": 1, "MASTERCARD": 1, "MIR": 1},
		transactions:  make(map[int64]*model.Transaction),
		completedKeys: make(map[string]int64),
		scheduled:     make(map[int64]*model.ScheduledTransfer),
		achievements: map[string]int64{
			model.AchievementFirstTransaction: 1,
			model.AchievementActiveUser:       2,
			model.AchievementSavingsMaster:    3,
			model.AchievementAmbassador:       4,
		},
		granted: make(map[int64]map[int64]time.Time),
		now:     time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func copyAccount(a *model.BankAccount) *model.BankAccount {
	c := *a
	if a.Saving != nil {
		s := *a.Saving
		c.Saving = &s
	}
	return &c
}

func copyTransaction(t *model.Transaction) *model.Transaction {
	c := *t
	return &c
}

// users

func (s *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return model.NewError(model.KindConflict, "", "email already exists")
		}
		if u.Phone == user.Phone {
			return model.NewError(model.KindConflict, "", "phone already exists")
		}
	}
	if user.ReferredBy != nil {
		if _, ok := s.users[*user.ReferredBy]; !ok {
			return model.NotFound("user", *user.ReferredBy)
		}
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt
	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, model.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) SetReferrer(ctx context.Context, referredID, referrerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[referrerID]; !ok {
		return model.NotFound("user", referrerID)
	}
	u, ok := s.users[referredID]
	if !ok || u.ReferredBy != nil {
		return model.NewError(model.KindConflict, "", "user %d not found or already referred", referredID)
	}
	if referredID == referrerID {
		return model.NewError(model.KindValidation, "", "user cannot refer themselves")
	}
	ref := referrerID
	u.ReferredBy = &ref
	u.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) CountReferrals(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, u := range s.users {
		if u.ReferredBy != nil && *u.ReferredBy == userID {
			count++
		}
	}
	return count, nil
}

// accounts

func (s *MemoryStore) NextAccountNumber(ctx context.Context, paymentSystem string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.lastNumbers[paymentSystem]
	if !ok {
		return "", model.NotFound("payment system", paymentSystem)
	}
	s.lastNumbers[paymentSystem] = n + 1
	return fmt.Sprintf("%s%06d", paymentSystem, n), nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *model.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lastNumbers[account.PaymentSystem]; !ok {
		return model.NotFound("payment system", account.PaymentSystem)
	}
	if account.OwnerID != nil {
		if _, ok := s.users[*account.OwnerID]; !ok {
			return model.NotFound("user", *account.OwnerID)
		}
	}
	for _, a := range s.accounts {
		if a.AccountNumber == account.AccountNumber {
			return model.NewError(model.KindConflict, "", "account number %s already exists", account.AccountNumber)
		}
	}

	s.nextAccountID++
	account.ID = s.nextAccountID
	account.CreatedAt = s.now()
	account.UpdatedAt = account.CreatedAt
	if account.Saving != nil {
		account.Saving.BankAccountID = account.ID
		account.Saving.NextInterestDate = model.Date(account.Saving.NextInterestDate)
	}
	s.accounts[account.ID] = copyAccount(account)
	s.owners[account.ID] = make(map[int64]bool)
	if account.OwnerID != nil {
		s.owners[account.ID][*account.OwnerID] = true
	}
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id int64) (*model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, model.NotFound("account", id)
	}
	return copyAccount(a), nil
}

func (s *MemoryStore) GetUserAccounts(ctx context.Context, userID int64) ([]model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []model.BankAccount
	for id, users := range s.owners {
		if users[userID] {
			accounts = append(accounts, *copyAccount(s.accounts[id]))
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *MemoryStore) AddAccountOwner(ctx context.Context, accountID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return model.NotFound("account", accountID)
	}
	if _, ok := s.users[userID]; !ok {
		return model.NotFound("user", userID)
	}
	s.owners[accountID][userID] = true
	return nil
}

func (s *MemoryStore) GetAccountOwners(ctx context.Context, accountID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owners []int64
	for id := range s.owners[accountID] {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}

func (s *MemoryStore) UpdateAccountStatus(ctx context.Context, id int64, from, to model.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok || a.Status != from {
		return model.NewError(model.KindConflict, "", "account %d is not in status %s", id, from)
	}
	a.Status = to
	a.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetDueSavingAccounts(ctx context.Context, asOf time.Time) ([]model.SavingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asOf = model.Date(asOf)
	var due []model.SavingAccount
	for _, a := range s.accounts {
		if a.Saving == nil || a.Status == model.AccountStatusClosed {
			continue
		}
		if !a.Saving.NextInterestDate.After(asOf) {
			due = append(due, *a.Saving)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextInterestDate.Equal(due[j].NextInterestDate) {
			return due[i].NextInterestDate.Before(due[j].NextInterestDate)
		}
		return due[i].BankAccountID < due[j].BankAccountID
	})
	return due, nil
}

func (s *MemoryStore) AdvanceInterestDate(ctx context.Context, accountID int64, expected, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.Saving == nil || !a.Saving.NextInterestDate.Equal(model.Date(expected)) {
		return model.NewError(model.KindConflict, "", "interest date of account %d already advanced", accountID)
	}
	a.Saving.NextInterestDate = model.Date(next)
	return nil
}

// transactions

func (s *MemoryStore) CommitPosting(ctx context.Context, posting *model.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := posting.Transaction

	var sender, receiver *model.BankAccount
	if txn.SenderAccountID != nil {
		a, ok := s.accounts[*txn.SenderAccountID]
		if !ok {
			return model.NotFound("account", *txn.SenderAccountID)
		}
		sender = a
	}
	if txn.ReceiverAccountID != nil {
		a, ok := s.accounts[*txn.ReceiverAccountID]
		if !ok {
			return model.NotFound("account", *txn.ReceiverAccountID)
		}
		receiver = a
	}

	if txn.IdempotencyKey != nil {
		if _, ok := s.completedKeys[*txn.IdempotencyKey]; ok {
			return model.NewError(model.KindConflict, "", "duplicate idempotency key %s", *txn.IdempotencyKey)
		}
	}

	var pending *model.Transaction
	if txn.ID != 0 {
		p, ok := s.transactions[txn.ID]
		if !ok || p.Status != model.TransactionStatusPending {
			return model.NewError(model.KindConflict, "", "transaction %d is not pending", txn.ID)
		}
		pending = p
	}

	if sender != nil && sender.Status != model.AccountStatusActive {
		return model.NewError(model.KindAccountState, model.ReasonAccountBlocked,
			"sender account %d is %s", sender.ID, sender.Status)
	}
	if receiver != nil && receiver.Status == model.AccountStatusClosed {
		return model.NewError(model.KindAccountState, model.ReasonAccountBlocked,
			"account %d is closed", receiver.ID)
	}
	if sender != nil && sender.Balance.Sub(txn.Amount).LessThan(posting.SenderFloor) {
		return model.NewError(model.KindInsufficientFunds, model.ReasonInsufficientFunds,
			"insufficient funds on account %d", sender.ID)
	}

	now := s.now()
	if sender != nil {
		sender.Balance = sender.Balance.Sub(txn.Amount)
		sender.UpdatedAt = now
	}
	if receiver != nil {
		receiver.Balance = receiver.Balance.Add(txn.Credited())
		receiver.UpdatedAt = now
	}

	txn.Status = model.TransactionStatusCompleted
	txn.FailureReason = ""
	txn.UpdatedAt = now
	if pending == nil {
		s.nextTransactionID++
		txn.ID = s.nextTransactionID
		txn.CreatedAt = now
	} else {
		txn.CreatedAt = pending.CreatedAt
	}
	s.transactions[txn.ID] = copyTransaction(txn)
	if txn.IdempotencyKey != nil {
		s.completedKeys[*txn.IdempotencyKey] = txn.ID
	}
	return nil
}

func (s *MemoryStore) RecordTransaction(ctx context.Context, txn *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if txn.ID != 0 {
		p, ok := s.transactions[txn.ID]
		if !ok || p.Status != model.TransactionStatusPending {
			return model.NewError(model.KindConflict, "", "transaction %d is not pending", txn.ID)
		}
		p.Status = txn.Status
		p.FailureReason = txn.FailureReason
		p.ConvertedAmount = txn.ConvertedAmount
		p.UpdatedAt = now
		txn.UpdatedAt = now
		return nil
	}

	for _, id := range txn.AccountIDs() {
		if _, ok := s.accounts[id]; !ok {
			return model.NotFound("account", id)
		}
	}
	s.nextTransactionID++
	txn.ID = s.nextTransactionID
	txn.CreatedAt = now
	txn.UpdatedAt = now
	s.transactions[txn.ID] = copyTransaction(txn)
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, model.NotFound("transaction", id)
	}
	return copyTransaction(t), nil
}

func (s *MemoryStore) GetCompletedByKey(ctx context.Context, key string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.completedKeys[key]
	if !ok {
		return nil, model.NotFound("transaction with key", key)
	}
	return copyTransaction(s.transactions[id]), nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Transaction
	for _, t := range s.transactions {
		if filter.AccountID != 0 && !touches(t, filter.AccountID) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && t.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !t.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func touches(t *model.Transaction, accountID int64) bool {
	return (t.SenderAccountID != nil && *t.SenderAccountID == accountID) ||
		(t.ReceiverAccountID != nil && *t.ReceiverAccountID == accountID)
}

func (s *MemoryStore) UpdateTransactionStatus(ctx context.Context, id int64, from, to model.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok || t.Status != from {
		return model.NewError(model.KindConflict, "", "transaction %d is not %s", id, from)
	}
	t.Status = to
	t.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetUserActivity(ctx context.Context, userID int64) (*model.UserActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity := &model.UserActivity{TotalReceived: decimal.Zero}
	for _, t := range s.transactions {
		if t.Status != model.TransactionStatusCompleted {
			continue
		}
		counted := false
		if t.SenderAccountID != nil && s.owners[*t.SenderAccountID][userID] {
			counted = true
		}
		if t.ReceiverAccountID != nil && s.owners[*t.ReceiverAccountID][userID] {
			counted = true
			activity.TotalReceived = activity.TotalReceived.Add(t.Credited())
		}
		if counted {
			activity.TransactionCount++
		}
	}
	return activity, nil
}

// scheduled transfers

func (s *MemoryStore) CreateScheduledTransfer(ctx context.Context, st *model.ScheduledTransfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []int64{st.SenderAccountID, st.ReceiverAccountID} {
		if _, ok := s.accounts[id]; !ok {
			return model.NotFound("account", id)
		}
	}
	s.nextScheduledID++
	st.ID = s.nextScheduledID
	st.CreatedAt = s.now()
	st.StartDate = model.Date(st.StartDate)
	st.NextOccurrenceDate = model.Date(st.NextOccurrenceDate)
	c := *st
	s.scheduled[st.ID] = &c
	return nil
}

func (s *MemoryStore) GetScheduledTransfer(ctx context.Context, id int64) (*model.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scheduled[id]
	if !ok {
		return nil, model.NotFound("scheduled transfer", id)
	}
	c := *st
	return &c, nil
}

func (s *MemoryStore) GetAccountScheduledTransfers(ctx context.Context, accountID int64) ([]model.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.ScheduledTransfer
	for _, st := range s.scheduled {
		if st.SenderAccountID == accountID || st.ReceiverAccountID == accountID {
			result = append(result, *st)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) GetDueScheduledTransfers(ctx context.Context, asOf time.Time) ([]model.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asOf = model.Date(asOf)
	var due []model.ScheduledTransfer
	for _, st := range s.scheduled {
		if st.IsActive && !st.NextOccurrenceDate.After(asOf) && !st.Expired(asOf) {
			due = append(due, *st)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextOccurrenceDate.Equal(due[j].NextOccurrenceDate) {
			return due[i].NextOccurrenceDate.Before(due[j].NextOccurrenceDate)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (s *MemoryStore) AdvanceScheduledTransfer(ctx context.Context, id int64, expected, next time.Time, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scheduled[id]
	if !ok || !st.IsActive || !st.NextOccurrenceDate.Equal(model.Date(expected)) {
		return model.NewError(model.KindConflict, "", "scheduled transfer %d already advanced", id)
	}
	st.NextOccurrenceDate = model.Date(next)
	st.IsActive = active
	return nil
}

func (s *MemoryStore) DeactivateExpiredTransfers(ctx context.Context, asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, st := range s.scheduled {
		if st.IsActive && st.Expired(asOf) {
			st.IsActive = false
			n++
		}
	}
	return n, nil
}

// achievements

func (s *MemoryStore) GrantAchievement(ctx context.Context, userID int64, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	achievementID, ok := s.achievements[name]
	if !ok {
		return false, nil
	}
	if _, ok := s.users[userID]; !ok {
		return false, model.NotFound("user", userID)
	}
	if s.granted[userID] == nil {
		s.granted[userID] = make(map[int64]time.Time)
	}
	if _, ok := s.granted[userID][achievementID]; ok {
		return false, nil
	}
	s.granted[userID][achievementID] = s.now()
	return true, nil
}

func (s *MemoryStore) GetUserAchievements(ctx context.Context, userID int64) ([]model.UserAchievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[int64]string, len(s.achievements))
	for name, id := range s.achievements {
		names[id] = name
	}
	var result []model.UserAchievement
	for id, at := range s.granted[userID] {
		result = append(result, model.UserAchievement{
			UserID:        userID,
			AchievementID: id,
			Name:          names[id],
			AchievedAt:    at,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AchievementID < result[j].AchievementID })
	return result, nil
}
