package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusBlocked AccountStatus = "blocked"
	AccountStatusClosed  AccountStatus = "closed"
)

// Допустимые переходы статуса счета. closed - терминальный.
var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusActive:  {AccountStatusBlocked, AccountStatusClosed},
	AccountStatusBlocked: {AccountStatusActive, AccountStatusClosed},
}

// CanTransition проверяет переход статуса счета
func (s AccountStatus) CanTransition(to AccountStatus) bool {
	for _, allowed := range accountTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusBlocked, AccountStatusClosed:
		return true
	}
	return false
}

type BankAccount struct {
	ID            int64           `json:"id" db:"bank_account_id"`
	AccountNumber string          `json:"account_number" db:"account_number"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Currency      string          `json:"currency" db:"currency"`
	Status        AccountStatus   `json:"status" db:"status"`
	PaymentSystem string          `json:"payment_system" db:"payment_system"`
	OwnerID       *int64          `json:"owner_id,omitempty" db:"owner_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`

	// Заполняется только для накопительных счетов
	Saving *SavingAccount `json:"saving,omitempty" db:"-"`
}

// MinBalance - нижняя граница баланса после списания
func (a *BankAccount) MinBalance() decimal.Decimal {
	if a.Saving != nil {
		return a.Saving.MinBalance
	}
	return decimal.Zero
}

// Available - сколько можно списать, не нарушив MinBalance
func (a *BankAccount) Available() decimal.Decimal {
	return a.Balance.Sub(a.MinBalance())
}

type SavingAccount struct {
	BankAccountID    int64           `json:"bank_account_id" db:"bank_account_id"`
	GoalName         string          `json:"goal_name" db:"goal_name"`
	GoalAmount       decimal.Decimal `json:"goal_amount" db:"goal_amount"`
	MinBalance       decimal.Decimal `json:"min_balance" db:"min_balance"`
	InterestRate     decimal.Decimal `json:"interest_rate" db:"interest_rate"`     // процентов годовых
	InterestPeriod   int             `json:"interest_period" db:"interest_period"` // в днях
	NextInterestDate time.Time       `json:"next_interest_date" db:"next_interest_date"`
}

// DefaultInterestPeriod - период начисления процентов по умолчанию, дней
const DefaultInterestPeriod = 30

type PaymentSystem struct {
	ID         int64  `json:"id" db:"payment_system_id"`
	Name       string `json:"payment_system" db:"payment_system"`
	LastNumber int64  `json:"last_number" db:"last_number"`
}

type CreateAccountRequest struct {
	OwnerID        *int64          `json:"owner_id"`
	Currency       string          `json:"currency"`
	PaymentSystem  string          `json:"payment_system"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

type OpenSavingRequest struct {
	CreateAccountRequest
	GoalName       string          `json:"goal_name"`
	GoalAmount     decimal.Decimal `json:"goal_amount"`
	MinBalance     decimal.Decimal `json:"min_balance"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	InterestPeriod int             `json:"interest_period"`
}

type ChangeStatusRequest struct {
	Status AccountStatus `json:"status"`
}

type AddOwnerRequest struct {
	UserID int64 `json:"user_id"`
}
