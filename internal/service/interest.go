package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/repository"
)

var daysInYear = decimal.NewFromInt(365)

type InterestService struct {
	accounts repository.AccountStore
	ledger   *LedgerService
	retrier  *Retrier
	sweep    sync.Mutex
	logger   *logrus.Logger
}

func NewInterestService(accounts repository.AccountStore, ledger *LedgerService, retrier *Retrier, logger *logrus.Logger) *InterestService {
	return &InterestService{
		accounts: accounts,
		ledger:   ledger,
		retrier:  retrier,
		logger:   logger,
	}
}

// Interest = balance * rate/100 * period/365, до копеек
func Interest(balance, ratePercent decimal.Decimal, periodDays int) decimal.Decimal {
	return balance.
		Mul(ratePercent).
		Mul(decimal.NewFromInt(int64(periodDays))).
		Div(decimal.NewFromInt(100).Mul(daysInYear)).
		Round(2)
}

// AccrueDue начисляет проценты по накопительным счетам с наступившей датой
func (s *InterestService) AccrueDue(ctx context.Context, asOf time.Time) (*model.SweepReport, error) {
	if !s.sweep.TryLock() {
		s.logger.Warn("Начисление процентов уже выполняется, пропуск")
		return nil, ErrSweepInProgress
	}
	defer s.sweep.Unlock()

	started := time.Now()
	asOf = model.Date(asOf)
	report := &model.SweepReport{AsOf: asOf}

	due, err := s.accounts.GetDueSavingAccounts(ctx, asOf)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка получения накопительных счетов")
		return nil, err
	}
	report.Due = len(due)

	for i := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.accrueAccount(ctx, &due[i], asOf, report)
	}

	report.Duration = time.Since(started).String()
	s.logger.WithFields(logrus.Fields{
		"accounts": report.Due,
		"executed": report.Executed,
		"failed":   report.Failed,
	}).Info("Начисление процентов завершено")
	return report, nil
}

func (s *InterestService) accrueAccount(ctx context.Context, saving *model.SavingAccount, asOf time.Time, report *model.SweepReport) {
	period := saving.InterestPeriod
	if period <= 0 {
		period = model.DefaultInterestPeriod
	}

	date := saving.NextInterestDate
	for !date.After(asOf) {
		account, err := s.accounts.GetAccount(ctx, saving.BankAccountID)
		if err != nil {
			report.Failed++
			s.logger.WithError(err).Errorf("Ошибка получения счета %d", saving.BankAccountID)
			return
		}

		interest := Interest(account.Balance, saving.InterestRate, period)
		if interest.IsPositive() {
			receiver := account.ID
			req := model.TransactionRequest{
				ReceiverAccountID: &receiver,
				Amount:            interest,
				Currency:          account.Currency,
				Type:              model.TransactionTypeInterest,
				Description:       fmt.Sprintf("Interest %s%% for %d days", saving.InterestRate.String(), period),
				IdempotencyKey:    fmt.Sprintf("interest:%d:%s", account.ID, model.DateKey(date)),
			}
			err := s.retrier.Execute(ctx, func(ctx context.Context) error {
				_, err := s.ledger.Submit(ctx, req)
				return err
			})
			if err != nil {
				report.Failed++
				s.logger.WithError(err).Errorf("Не удалось начислить проценты на счет %d", account.ID)
				return
			}
		} else {
			report.Skipped++
		}

		next := date.AddDate(0, 0, period)
		if err := s.accounts.AdvanceInterestDate(ctx, account.ID, date, next); err != nil {
			s.logger.WithError(err).Warnf("Дата начисления по счету %d уже сдвинута", account.ID)
			return
		}
		if interest.IsPositive() {
			report.Executed++
			s.logger.WithFields(logrus.Fields{
				"account_id": account.ID,
				"interest":   interest.String(),
				"next_date":  model.DateKey(next),
			}).Info("Проценты начислены")
		}
		date = next
	}
}
