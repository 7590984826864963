package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/repository"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// LedgerService - единственный путь изменения балансов.
// Каждая операция либо целиком зафиксирована, либо записана как failed.
type LedgerService struct {
	accounts     repository.AccountStore
	transactions repository.TransactionStore
	locker       *AccountLocker
	rates        RateProvider
	bus          *EventBus
	logger       *logrus.Logger
}

func NewLedgerService(
	accounts repository.AccountStore,
	transactions repository.TransactionStore,
	locker *AccountLocker,
	rates RateProvider,
	bus *EventBus,
	logger *logrus.Logger,
) *LedgerService {
	return &LedgerService{
		accounts:     accounts,
		transactions: transactions,
		locker:       locker,
		rates:        rates,
		bus:          bus,
		logger:       logger,
	}
}

// Submit проводит операцию. Повтор с ключом уже завершенной операции
// возвращает ее без повторного исполнения. При отказе вместе с ошибкой
// возвращается записанная failed-транзакция.
func (s *LedgerService) Submit(ctx context.Context, req model.TransactionRequest) (*model.Transaction, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.transactions.GetCompletedByKey(ctx, req.IdempotencyKey)
		if err == nil {
			s.logger.Infof("Повтор операции с ключом %s, возвращаем транзакцию %d", req.IdempotencyKey, existing.ID)
			return existing, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	txn, err := newTransaction(req, model.TransactionStatusPending)
	if err != nil {
		s.logger.WithError(err).Warn("Отклонена некорректная заявка на операцию")
		return nil, err
	}
	return s.execute(ctx, txn)
}

// CreatePending записывает операцию без движения средств
func (s *LedgerService) CreatePending(ctx context.Context, req model.TransactionRequest) (*model.Transaction, error) {
	txn, err := newTransaction(req, model.TransactionStatusPending)
	if err != nil {
		return nil, err
	}
	if !validAmount(txn.Amount) {
		return nil, model.NewError(model.KindValidation, model.ReasonInvalidAmount,
			"amount must be positive with at most 2 decimal places")
	}

	sender, receiver, err := s.loadAccounts(ctx, txn)
	if err != nil {
		return nil, err
	}
	txn.Currency = transactionCurrency(txn, sender, receiver)

	if err := s.transactions.RecordTransaction(ctx, txn); err != nil {
		s.logger.WithError(err).Error("Ошибка записи отложенной операции")
		return nil, err
	}
	s.logger.Infof("Создана отложенная операция %d на сумму %s", txn.ID, txn.Amount)
	return txn, nil
}

// Settle исполняет отложенную операцию по общим правилам
func (s *LedgerService) Settle(ctx context.Context, id int64) (*model.Transaction, error) {
	txn, err := s.transactions.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.TransactionStatusPending {
		return nil, model.NewError(model.KindConflict, "", "transaction %d is %s, not pending", id, txn.Status)
	}
	return s.execute(ctx, txn)
}

// Cancel переводит pending в cancelled. Завершенные и отклоненные операции не отменяются.
func (s *LedgerService) Cancel(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := s.transactions.UpdateTransactionStatus(ctx, id,
		model.TransactionStatusPending, model.TransactionStatusCancelled); err != nil {
		s.logger.WithError(err).Warnf("Не удалось отменить операцию %d", id)
		return nil, err
	}
	s.logger.Infof("Операция %d отменена", id)
	return s.transactions.GetTransaction(ctx, id)
}

// DeleteTransaction всегда отклоняется: журнал операций неизменяем
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	s.logger.WithField("transaction_id", id).Warn("Попытка удаления транзакции отклонена")
	return model.NewError(model.KindInvariant, "", "transaction %d cannot be deleted", id)
}

func (s *LedgerService) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	return s.transactions.GetTransaction(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	transactions, err := s.transactions.ListTransactions(ctx, filter)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка при получении списка транзакций")
		return nil, err
	}
	return transactions, nil
}

func (s *LedgerService) execute(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	if !validAmount(txn.Amount) {
		sender, receiver, err := s.loadAccounts(ctx, txn)
		if err != nil {
			return nil, err
		}
		txn.Currency = transactionCurrency(txn, sender, receiver)
		return s.fail(ctx, txn, model.KindValidation, model.ReasonInvalidAmount,
			"amount must be positive with at most 2 decimal places")
	}

	release, err := s.locker.Acquire(ctx, txn.AccountIDs()...)
	if err != nil {
		s.logger.WithError(err).Warn("Счета заняты, операция не выполнена")
		return nil, err
	}
	defer release()

	sender, receiver, err := s.loadAccounts(ctx, txn)
	if err != nil {
		return nil, err
	}

	if sender != nil && sender.Status != model.AccountStatusActive {
		return s.fail(ctx, txn, model.KindAccountState, model.ReasonAccountBlocked,
			"sender account %d is %s", sender.ID, sender.Status)
	}
	if receiver != nil && receiver.Status == model.AccountStatusClosed {
		return s.fail(ctx, txn, model.KindAccountState, model.ReasonAccountBlocked,
			"receiver account %d is closed", receiver.ID)
	}

	txn.Currency = transactionCurrency(txn, sender, receiver)
	txn.ConvertedAmount = decimal.NullDecimal{}
	if receiver != nil && !strings.EqualFold(txn.Currency, receiver.Currency) {
		converted, err := s.rates.Convert(ctx, txn.Amount, txn.Currency, receiver.Currency)
		if err != nil {
			return s.fail(ctx, txn, model.KindValidation, model.ReasonCurrencyUnavailable,
				"cannot convert %s to %s", txn.Currency, receiver.Currency)
		}
		if !converted.IsPositive() {
			return s.fail(ctx, txn, model.KindValidation, model.ReasonInvalidAmount,
				"amount %s %s is too small to convert to %s", txn.Amount, txn.Currency, receiver.Currency)
		}
		txn.ConvertedAmount = decimal.NewNullDecimal(converted)
	}

	var floor decimal.Decimal
	if sender != nil {
		floor = sender.MinBalance()
		if sender.Balance.Sub(txn.Amount).LessThan(floor) {
			return s.fail(ctx, txn, model.KindInsufficientFunds, model.ReasonInsufficientFunds,
				"insufficient funds on account %d: balance %s, amount %s, minimum %s",
				sender.ID, sender.Balance, txn.Amount, floor)
		}
	}

	err = s.transactions.CommitPosting(ctx, &model.Posting{Transaction: txn, SenderFloor: floor})
	if err != nil {
		switch model.KindOf(err) {
		case model.KindInsufficientFunds, model.KindAccountState:
			// баланс или статус изменился в обход блокировки процесса
			return s.fail(ctx, txn, model.KindOf(err), model.ReasonOf(err), "%s", err.Error())
		case model.KindConflict:
			if txn.IdempotencyKey != nil {
				if existing, getErr := s.transactions.GetCompletedByKey(ctx, *txn.IdempotencyKey); getErr == nil {
					return existing, nil
				}
			}
		}
		s.logger.WithError(err).Error("Ошибка фиксации проводки")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"type":           txn.Type,
		"amount":         txn.Amount.String(),
		"currency":       txn.Currency,
	}).Info("Операция проведена")
	s.publish(ctx, model.EventTransactionCompleted, txn)
	return txn, nil
}

// fail записывает отказ с классифицированной причиной и возвращает его как ошибку
func (s *LedgerService) fail(
	ctx context.Context,
	txn *model.Transaction,
	kind model.ErrorKind,
	reason model.FailureReason,
	format string,
	args ...any,
) (*model.Transaction, error) {
	cause := model.NewError(kind, reason, format, args...)

	txn.Status = model.TransactionStatusFailed
	txn.FailureReason = reason
	if err := s.transactions.RecordTransaction(ctx, txn); err != nil {
		s.logger.WithError(err).Warn("Не удалось записать отклоненную операцию")
		if errors.Is(err, model.ErrConflict) {
			// операцию уже завершил параллельный вызов
			return nil, err
		}
		return nil, cause
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"reason":         reason,
	}).Warn("Операция отклонена")
	s.publish(ctx, model.EventTransactionFailed, txn)
	return txn, cause
}

func (s *LedgerService) loadAccounts(ctx context.Context, txn *model.Transaction) (sender, receiver *model.BankAccount, err error) {
	if txn.SenderAccountID != nil {
		if sender, err = s.accounts.GetAccount(ctx, *txn.SenderAccountID); err != nil {
			return nil, nil, err
		}
	}
	if txn.ReceiverAccountID != nil {
		if receiver, err = s.accounts.GetAccount(ctx, *txn.ReceiverAccountID); err != nil {
			return nil, nil, err
		}
	}
	return sender, receiver, nil
}

func (s *LedgerService) publish(ctx context.Context, kind model.EventKind, txn *model.Transaction) {
	if s.bus == nil {
		return
	}
	snapshot := *txn
	s.bus.Publish(ctx, model.LedgerEvent{
		ID:          uuid.New(),
		Kind:        kind,
		Transaction: &snapshot,
		OccurredAt:  time.Now().UTC(),
	})
}

// newTransaction проверяет структуру заявки: тип и набор сторон
func newTransaction(req model.TransactionRequest, status model.TransactionStatus) (*model.Transaction, error) {
	needSender, needReceiver, ok := req.Type.Sides()
	if !ok {
		return nil, model.NewError(model.KindValidation, "", "unknown transaction type %q", req.Type)
	}
	if needSender != (req.SenderAccountID != nil) {
		return nil, model.NewError(model.KindValidation, "", "%s requires sender_account_id: %t", req.Type, needSender)
	}
	if needReceiver != (req.ReceiverAccountID != nil) {
		return nil, model.NewError(model.KindValidation, "", "%s requires receiver_account_id: %t", req.Type, needReceiver)
	}
	if c := strings.TrimSpace(req.Currency); c != "" && len(c) != 3 {
		return nil, model.NewError(model.KindValidation, "", "currency must be a 3-letter ISO code")
	}
	if req.SenderAccountID != nil && req.ReceiverAccountID != nil && *req.SenderAccountID == *req.ReceiverAccountID {
		return nil, model.NewError(model.KindValidation, "", "sender and receiver must differ")
	}

	txn := &model.Transaction{
		SenderAccountID:   req.SenderAccountID,
		ReceiverAccountID: req.ReceiverAccountID,
		Amount:            req.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		Description:       req.Description,
		Type:              req.Type,
		Status:            status,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		txn.IdempotencyKey = &key
	}
	return txn, nil
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

// transactionCurrency: сумма всегда в валюте отправителя, для пополнений -
// в валюте заявки или получателя
func transactionCurrency(txn *model.Transaction, sender, receiver *model.BankAccount) string {
	if sender != nil {
		return sender.Currency
	}
	if txn.Currency != "" {
		return txn.Currency
	}
	if receiver != nil {
		return receiver.Currency
	}
	return txn.Currency
}
