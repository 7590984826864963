package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/repository"
)

type AnalyticService struct {
	accounts     repository.AccountStore
	transactions repository.TransactionStore
	logger       *logrus.Logger
}

func NewAnalyticService(
	accounts repository.AccountStore,
	transactions repository.TransactionStore,
	logger *logrus.Logger,
) *AnalyticService {
	return &AnalyticService{
		accounts:     accounts,
		transactions: transactions,
		logger:       logger,
	}
}

// GetAccountStats возвращает статистику по поступлениям/списаниям счета за [from, to)
func (s *AnalyticService) GetAccountStats(ctx context.Context, accountID int64, from, to time.Time) (*model.AccountStats, error) {
	s.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"from":       from.Format("2006-01-02"),
		"to":         to.Format("2006-01-02"),
	}).Debug("Начало расчета статистики по счету")

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, model.NewError(model.KindValidation, "", "from must not be after to")
	}

	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	transactions, err := s.transactions.ListTransactions(ctx, model.TransactionFilter{
		AccountID: accountID,
		From:      from,
		To:        to,
	})
	if err != nil {
		s.logger.WithError(err).Error("Ошибка получения транзакций по счету")
		return nil, err
	}

	stats := &model.AccountStats{
		AccountID:     accountID,
		From:          from,
		To:            to,
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		ByType:        make(map[model.TransactionType]model.TypeStats),
	}

	for _, t := range transactions {
		if t.Status == model.TransactionStatusFailed {
			stats.FailedCount++
			continue
		}
		if t.Status != model.TransactionStatusCompleted {
			continue
		}

		byType := stats.ByType[t.Type]
		byType.Count++
		if t.ReceiverAccountID != nil && *t.ReceiverAccountID == accountID {
			credited := t.Credited()
			stats.TotalIncome = stats.TotalIncome.Add(credited)
			byType.Income = byType.Income.Add(credited)
		}
		if t.SenderAccountID != nil && *t.SenderAccountID == accountID {
			stats.TotalExpenses = stats.TotalExpenses.Add(t.Amount)
			byType.Expenses = byType.Expenses.Add(t.Amount)
		}
		stats.ByType[t.Type] = byType
	}
	stats.NetBalance = stats.TotalIncome.Sub(stats.TotalExpenses)

	s.logger.WithFields(logrus.Fields{
		"account_id":   accountID,
		"transactions": len(transactions),
		"income":       stats.TotalIncome.String(),
		"expenses":     stats.TotalExpenses.String(),
	}).Info("Статистика по счету рассчитана")
	return stats, nil
}
