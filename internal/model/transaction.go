package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "transfer"   // перевод между счетами
	TransactionTypeDeposit    TransactionType = "deposit"    // пополнение счета
	TransactionTypeWithdrawal TransactionType = "withdrawal" // вывод средств со счета
	TransactionTypePayment    TransactionType = "payment"    // оплата
	TransactionTypeRefund     TransactionType = "refund"     // возврат
	TransactionTypeInterest   TransactionType = "interest"   // начисление процентов
)

// Sides сообщает, какие стороны нужны операции: отправитель и получатель
func (t TransactionType) Sides() (sender, receiver bool, ok bool) {
	switch t {
	case TransactionTypeTransfer, TransactionTypePayment, TransactionTypeRefund:
		return true, true, true
	case TransactionTypeDeposit, TransactionTypeInterest:
		return false, true, true
	case TransactionTypeWithdrawal:
		return true, false, true
	}
	return false, false, false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

type FailureReason string

const (
	ReasonInsufficientFunds   FailureReason = "insufficient_funds"
	ReasonAccountBlocked      FailureReason = "account_blocked"
	ReasonInvalidAmount       FailureReason = "invalid_amount"
	ReasonCurrencyUnavailable FailureReason = "currency_unavailable"
)

type Transaction struct {
	ID                int64               `json:"id" db:"transaction_id"`
	SenderAccountID   *int64              `json:"sender_account_id" db:"sender_account_id"`
	ReceiverAccountID *int64              `json:"receiver_account_id" db:"receiver_account_id"`
	Amount            decimal.Decimal     `json:"amount" db:"amount"`
	ConvertedAmount   decimal.NullDecimal `json:"converted_amount" db:"converted_amount"`
	Currency          string              `json:"currency" db:"currency"`
	Description       string              `json:"description" db:"description"`
	Type              TransactionType     `json:"type" db:"type"`
	Status            TransactionStatus   `json:"status" db:"status"`
	FailureReason     FailureReason       `json:"failure_reason,omitempty" db:"failure_reason"`
	IdempotencyKey    *string             `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" db:"updated_at"`
}

// Credited - сумма, зачисленная получателю в его валюте
func (t *Transaction) Credited() decimal.Decimal {
	if t.ConvertedAmount.Valid {
		return t.ConvertedAmount.Decimal
	}
	return t.Amount
}

// AccountIDs возвращает все счета, затронутые транзакцией
func (t *Transaction) AccountIDs() []int64 {
	ids := make([]int64, 0, 2)
	if t.SenderAccountID != nil {
		ids = append(ids, *t.SenderAccountID)
	}
	if t.ReceiverAccountID != nil {
		ids = append(ids, *t.ReceiverAccountID)
	}
	return ids
}

// TransactionRequest - заявка на проведение операции через леджер
type TransactionRequest struct {
	SenderAccountID   *int64          `json:"sender_account_id"`
	ReceiverAccountID *int64          `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"` // только для пополнений без отправителя
	Type              TransactionType `json:"type"`
	Description       string          `json:"description"`
	IdempotencyKey    string          `json:"idempotency_key"`
}

// Posting - проводка, которую хранилище применяет атомарно
type Posting struct {
	Transaction *Transaction
	// Нижняя граница баланса отправителя после списания
	SenderFloor decimal.Decimal
}

// TransactionFilter - параметры выборки транзакций
type TransactionFilter struct {
	AccountID int64
	Status    TransactionStatus
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// UserActivity - агрегаты по счетам пользователя для правил достижений
type UserActivity struct {
	TransactionCount int             `json:"transaction_count"`
	TotalReceived    decimal.Decimal `json:"total_received"`
	ReferralCount    int             `json:"referral_count"`
}
