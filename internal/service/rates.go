package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"bank-ledger/internal/model"
)

// RateProvider пересчитывает сумму между валютами.
// Результат округляется до копеек, половина - от нуля.
type RateProvider interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// RateTable хранит количество единиц каждой валюты за одну базовую
type RateTable struct {
	Base  string
	units map[string]decimal.Decimal
}

func NewRateTable(base string, units map[string]decimal.Decimal) *RateTable {
	t := &RateTable{Base: strings.ToUpper(base), units: make(map[string]decimal.Decimal, len(units)+1)}
	for code, u := range units {
		t.units[strings.ToUpper(code)] = u
	}
	t.units[t.Base] = decimal.NewFromInt(1)
	return t
}

// DefaultRateTable - фиксированные курсы к USD
func DefaultRateTable() *RateTable {
	return NewRateTable("USD", map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("0.85"),
		"RUB": decimal.RequireFromString("75.0"),
		"GBP": decimal.RequireFromString("0.73"),
	})
}

func (t *RateTable) Has(code string) bool {
	_, ok := t.units[strings.ToUpper(code)]
	return ok
}

func (t *RateTable) Len() int {
	return len(t.units)
}

func (t *RateTable) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount.Round(2), nil
	}
	fromUnits, ok := t.units[from]
	if !ok || !fromUnits.IsPositive() {
		return decimal.Zero, currencyUnavailable(from)
	}
	toUnits, ok := t.units[to]
	if !ok || !toUnits.IsPositive() {
		return decimal.Zero, currencyUnavailable(to)
	}
	return amount.Mul(toUnits).DivRound(fromUnits, 2), nil
}

func currencyUnavailable(code string) error {
	return model.NewError(model.KindValidation, model.ReasonCurrencyUnavailable, "currency %s is not available", code)
}

// StaticRates - провайдер с неизменной таблицей
type StaticRates struct {
	table *RateTable
}

func NewStaticRates(table *RateTable) *StaticRates {
	if table == nil {
		table = DefaultRateTable()
	}
	return &StaticRates{table: table}
}

func (s *StaticRates) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	return s.table.Convert(amount, from, to)
}
