package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Next возвращает дату следующего выполнения после current.
// Месячный и годовой шаг отсчитываются от дня anchor и прижимаются
// к последнему дню месяца: 31.01 -> 29.02 -> 31.03.
func (f Frequency) Next(anchor, current time.Time) (time.Time, error) {
	anchor, current = Date(anchor), Date(current)
	switch f {
	case FrequencyDaily:
		return current.AddDate(0, 0, 1), nil
	case FrequencyWeekly:
		return current.AddDate(0, 0, 7), nil
	case FrequencyMonthly:
		months := monthsBetween(anchor, current) + 1
		return addMonthsClamped(anchor, months), nil
	case FrequencyYearly:
		years := current.Year() - anchor.Year() + 1
		return addMonthsClamped(anchor, years*12), nil
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q", f)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func addMonthsClamped(anchor time.Time, months int) time.Time {
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := anchor.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// Date отбрасывает время суток, даты храним в UTC
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey - формат даты в ключах идемпотентности
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

type ScheduledTransfer struct {
	ID                 int64           `json:"id" db:"scheduled_transfer_id"`
	SenderAccountID    int64           `json:"sender_account_id" db:"sender_account_id"`
	ReceiverAccountID  int64           `json:"receiver_account_id" db:"receiver_account_id"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Description        string          `json:"description" db:"description"`
	Frequency          Frequency       `json:"frequency" db:"frequency"`
	StartDate          time.Time       `json:"start_date" db:"start_date"`
	NextOccurrenceDate time.Time       `json:"next_occurrence_date" db:"next_occurrence_date"`
	EndDate            *time.Time      `json:"end_date,omitempty" db:"end_date"`
	IsActive           bool            `json:"is_active" db:"is_active"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// IdempotencyKey - ключ выполнения конкретного вхождения расписания
func (s *ScheduledTransfer) IdempotencyKey(occurrence time.Time) string {
	return fmt.Sprintf("scheduled:%d:%s", s.ID, DateKey(occurrence))
}

// Expired - расписание вышло за end_date
func (s *ScheduledTransfer) Expired(asOf time.Time) bool {
	return s.EndDate != nil && Date(asOf).After(Date(*s.EndDate))
}

type CreateScheduledTransferRequest struct {
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	Frequency         Frequency       `json:"frequency"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           *time.Time      `json:"end_date"`
}

// SweepReport - итог одного прохода планировщика или начисления процентов
type SweepReport struct {
	AsOf     time.Time `json:"as_of"`
	Due      int       `json:"due"`
	Executed int       `json:"executed"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Duration string    `json:"duration"`
}
