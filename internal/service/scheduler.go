package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/repository"
)

// ErrSweepInProgress - предыдущий проход еще не завершился
var ErrSweepInProgress = errors.New("sweep already in progress")

type SchedulerService struct {
	schedules repository.ScheduleStore
	accounts  repository.AccountStore
	users     repository.UserStore
	ledger    *LedgerService
	retrier   *Retrier
	notifier  Notifier
	sweep     sync.Mutex
	logger    *logrus.Logger
}

func NewSchedulerService(
	schedules repository.ScheduleStore,
	accounts repository.AccountStore,
	users repository.UserStore,
	ledger *LedgerService,
	retrier *Retrier,
	notifier Notifier,
	logger *logrus.Logger,
) *SchedulerService {
	return &SchedulerService{
		schedules: schedules,
		accounts:  accounts,
		users:     users,
		ledger:    ledger,
		retrier:   retrier,
		notifier:  notifier,
		logger:    logger,
	}
}

func (s *SchedulerService) CreateScheduledTransfer(ctx context.Context, req model.CreateScheduledTransferRequest) (*model.ScheduledTransfer, error) {
	if !validAmount(req.Amount) {
		return nil, model.NewError(model.KindValidation, model.ReasonInvalidAmount,
			"amount must be positive with at most 2 decimal places")
	}
	if !req.Frequency.Valid() {
		return nil, model.NewError(model.KindValidation, "", "unknown frequency %q", req.Frequency)
	}
	if req.SenderAccountID == req.ReceiverAccountID {
		return nil, model.NewError(model.KindValidation, "", "sender and receiver must differ")
	}

	start := req.StartDate
	if start.IsZero() {
		start = time.Now()
	}
	start = model.Date(start)

	var end *time.Time
	if req.EndDate != nil {
		e := model.Date(*req.EndDate)
		if e.Before(start) {
			return nil, model.NewError(model.KindValidation, "", "end_date is before start_date")
		}
		end = &e
	}

	for _, id := range []int64{req.SenderAccountID, req.ReceiverAccountID} {
		if _, err := s.accounts.GetAccount(ctx, id); err != nil {
			return nil, err
		}
	}

	st := &model.ScheduledTransfer{
		SenderAccountID:    req.SenderAccountID,
		ReceiverAccountID:  req.ReceiverAccountID,
		Amount:             req.Amount,
		Description:        req.Description,
		Frequency:          req.Frequency,
		StartDate:          start,
		NextOccurrenceDate: start,
		EndDate:            end,
		IsActive:           true,
	}
	if err := s.schedules.CreateScheduledTransfer(ctx, st); err != nil {
		s.logger.WithError(err).Error("Ошибка создания регулярного перевода")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"scheduled_transfer_id": st.ID,
		"frequency":             st.Frequency,
		"start_date":            model.DateKey(st.StartDate),
	}).Info("Создан регулярный перевод")
	return st, nil
}

func (s *SchedulerService) GetScheduledTransfer(ctx context.Context, id int64) (*model.ScheduledTransfer, error) {
	return s.schedules.GetScheduledTransfer(ctx, id)
}

func (s *SchedulerService) ListScheduledTransfers(ctx context.Context, accountID int64) ([]model.ScheduledTransfer, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.schedules.GetAccountScheduledTransfers(ctx, accountID)
}

// RunDueTransfers исполняет все вхождения с датой не позже asOf, включая пропущенные.
// Неудачное вхождение не сдвигает дату и повторится в следующем проходе.
func (s *SchedulerService) RunDueTransfers(ctx context.Context, asOf time.Time) (*model.SweepReport, error) {
	if !s.sweep.TryLock() {
		s.logger.Warn("Проход планировщика уже выполняется, пропуск")
		return nil, ErrSweepInProgress
	}
	defer s.sweep.Unlock()

	started := time.Now()
	asOf = model.Date(asOf)
	report := &model.SweepReport{AsOf: asOf}

	if _, err := s.schedules.DeactivateExpiredTransfers(ctx, asOf); err != nil {
		s.logger.WithError(err).Error("Ошибка деактивации истекших переводов")
		return nil, err
	}

	due, err := s.schedules.GetDueScheduledTransfers(ctx, asOf)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка получения регулярных переводов к исполнению")
		return nil, err
	}
	report.Due = len(due)
	s.logger.Infof("Найдено %d регулярных переводов к исполнению на %s", len(due), model.DateKey(asOf))

	for i := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.runTransfer(ctx, &due[i], asOf, report)
	}

	report.Duration = time.Since(started).String()
	s.logger.WithFields(logrus.Fields{
		"executed": report.Executed,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
	}).Info("Проход планировщика завершен")
	return report, nil
}

func (s *SchedulerService) runTransfer(ctx context.Context, st *model.ScheduledTransfer, asOf time.Time, report *model.SweepReport) {
	occurrence := st.NextOccurrenceDate
	for !occurrence.After(asOf) {
		if st.Expired(occurrence) {
			if err := s.schedules.AdvanceScheduledTransfer(ctx, st.ID, occurrence, occurrence, false); err != nil {
				s.logger.WithError(err).Warnf("Не удалось деактивировать перевод %d", st.ID)
			}
			report.Skipped++
			return
		}

		if err := s.executeOccurrence(ctx, st, occurrence); err != nil {
			report.Failed++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"scheduled_transfer_id": st.ID,
				"occurrence":            model.DateKey(occurrence),
			}).Error("Регулярный перевод не выполнен")
			s.notifyFailure(ctx, st, occurrence, err)
			return
		}

		next, err := st.Frequency.Next(st.StartDate, occurrence)
		if err != nil {
			s.logger.WithError(err).Errorf("Некорректная частота перевода %d", st.ID)
			return
		}
		active := st.EndDate == nil || !next.After(*st.EndDate)
		if err := s.schedules.AdvanceScheduledTransfer(ctx, st.ID, occurrence, next, active); err != nil {
			// дату уже сдвинул другой проход
			s.logger.WithError(err).Warnf("Перевод %d уже обработан", st.ID)
			report.Skipped++
			return
		}
		report.Executed++
		if !active {
			return
		}
		occurrence = next
	}
}

func (s *SchedulerService) executeOccurrence(ctx context.Context, st *model.ScheduledTransfer, occurrence time.Time) error {
	sender, receiver := st.SenderAccountID, st.ReceiverAccountID
	req := model.TransactionRequest{
		SenderAccountID:   &sender,
		ReceiverAccountID: &receiver,
		Amount:            st.Amount,
		Type:              model.TransactionTypeTransfer,
		Description:       scheduledDescription(st),
		IdempotencyKey:    st.IdempotencyKey(occurrence),
	}
	return s.retrier.Execute(ctx, func(ctx context.Context) error {
		_, err := s.ledger.Submit(ctx, req)
		return err
	})
}

func scheduledDescription(st *model.ScheduledTransfer) string {
	if st.Description != "" {
		return st.Description
	}
	return fmt.Sprintf("Scheduled %s transfer #%d", st.Frequency, st.ID)
}

func (s *SchedulerService) notifyFailure(ctx context.Context, st *model.ScheduledTransfer, occurrence time.Time, cause error) {
	if s.notifier == nil {
		return
	}
	owners, err := s.accounts.GetAccountOwners(ctx, st.SenderAccountID)
	if err != nil {
		s.logger.WithError(err).Warn("Не удалось получить владельцев счета для уведомления")
		return
	}
	for _, id := range owners {
		user, err := s.users.GetUser(ctx, id)
		if err != nil {
			continue
		}
		if err := s.notifier.NotifyScheduledTransferFailed(ctx, user, st, occurrence, cause); err != nil {
			s.logger.WithError(err).Warn("Не удалось отправить email уведомление")
		}
	}
}
