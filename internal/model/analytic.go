package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStats - статистика по поступлениям/списаниям счета за период
type AccountStats struct {
	AccountID     int64                         `json:"account_id"`
	From          time.Time                     `json:"from"`
	To            time.Time                     `json:"to"`
	TotalIncome   decimal.Decimal               `json:"total_income"`
	TotalExpenses decimal.Decimal               `json:"total_expenses"`
	NetBalance    decimal.Decimal               `json:"net_balance"`
	FailedCount   int                           `json:"failed_count"`
	ByType        map[TransactionType]TypeStats `json:"by_type"`
}

// TypeStats - статистика по типам операций
type TypeStats struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Count    int             `json:"count"`
}
