package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/repository"
)

const defaultPaymentSystem = "VISA"

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

type AccountService struct {
	users    repository.UserStore
	accounts repository.AccountStore
	ledger   *LedgerService
	locker   *AccountLocker
	bus      *EventBus
	logger   *logrus.Logger
}

func NewAccountService(
	users repository.UserStore,
	accounts repository.AccountStore,
	ledger *LedgerService,
	locker *AccountLocker,
	bus *EventBus,
	logger *logrus.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		accounts: accounts,
		ledger:   ledger,
		locker:   locker,
		bus:      bus,
		logger:   logger,
	}
}

func (s *AccountService) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	if err := req.Validate(); err != nil {
		s.logger.WithError(err).Warn("Некорректные данные пользователя")
		return nil, err
	}

	user := &model.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.logger.WithError(err).Error("Ошибка при создании пользователя")
		return nil, err
	}

	s.logger.Infof("Создан пользователь %d", user.ID)
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetUser(ctx, id)
}

// ReferUser фиксирует, что referrer пригласил referred, и сообщает об этом подписчикам
func (s *AccountService) ReferUser(ctx context.Context, referrerID, referredID int64) error {
	if referrerID == referredID {
		return model.NewError(model.KindValidation, "", "user cannot refer themselves")
	}
	if _, err := s.users.GetUser(ctx, referrerID); err != nil {
		return err
	}
	if _, err := s.users.GetUser(ctx, referredID); err != nil {
		return err
	}
	if err := s.users.SetReferrer(ctx, referredID, referrerID); err != nil {
		s.logger.WithError(err).Warnf("Не удалось зафиксировать приглашение пользователя %d", referredID)
		return err
	}

	s.logger.Infof("Пользователь %d пригласил пользователя %d", referrerID, referredID)
	if s.bus != nil {
		s.bus.Publish(ctx, model.LedgerEvent{
			ID:         uuid.New(),
			Kind:       model.EventUserReferred,
			UserID:     referrerID,
			RelatedID:  referredID,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// CreateAccount открывает счет. Стартовый взнос проводится через леджер,
// поэтому баланс никогда не появляется без транзакции.
func (s *AccountService) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.BankAccount, error) {
	return s.openAccount(ctx, req, nil)
}

func (s *AccountService) OpenSavingAccount(ctx context.Context, req model.OpenSavingRequest) (*model.BankAccount, error) {
	if req.MinBalance.IsNegative() {
		return nil, model.NewError(model.KindValidation, "", "min_balance must not be negative")
	}
	if req.InterestRate.IsNegative() || req.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, model.NewError(model.KindValidation, "", "interest_rate must be between 0 and 100")
	}
	if req.GoalAmount.IsNegative() {
		return nil, model.NewError(model.KindValidation, "", "goal_amount must not be negative")
	}
	if req.InterestPeriod < 0 {
		return nil, model.NewError(model.KindValidation, "", "interest_period must be positive")
	}
	period := req.InterestPeriod
	if period == 0 {
		period = model.DefaultInterestPeriod
	}

	saving := &model.SavingAccount{
		GoalName:         strings.TrimSpace(req.GoalName),
		GoalAmount:       req.GoalAmount,
		MinBalance:       req.MinBalance.Round(2),
		InterestRate:     req.InterestRate,
		InterestPeriod:   period,
		NextInterestDate: model.Date(time.Now()).AddDate(0, 0, period),
	}
	return s.openAccount(ctx, req.CreateAccountRequest, saving)
}

func (s *AccountService) openAccount(ctx context.Context, req model.CreateAccountRequest, saving *model.SavingAccount) (*model.BankAccount, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !currencyCode.MatchString(currency) {
		return nil, model.NewError(model.KindValidation, "", "currency must be a 3-letter ISO code")
	}
	if req.InitialDeposit.IsNegative() || !req.InitialDeposit.Equal(req.InitialDeposit.Round(2)) {
		return nil, model.NewError(model.KindValidation, model.ReasonInvalidAmount, "invalid initial_deposit")
	}
	paymentSystem := strings.ToUpper(strings.TrimSpace(req.PaymentSystem))
	if paymentSystem == "" {
		paymentSystem = defaultPaymentSystem
	}
	if req.OwnerID != nil {
		if _, err := s.users.GetUser(ctx, *req.OwnerID); err != nil {
			return nil, err
		}
	}

	number, err := s.accounts.NextAccountNumber(ctx, paymentSystem)
	if err != nil {
		s.logger.WithError(err).Errorf("Ошибка выделения номера счета %s", paymentSystem)
		return nil, err
	}

	account := &model.BankAccount{
		AccountNumber: number,
		Balance:       decimal.Zero,
		Currency:      currency,
		Status:        model.AccountStatusActive,
		PaymentSystem: paymentSystem,
		OwnerID:       req.OwnerID,
		Saving:        saving,
	}

	s.logger.Infof("Создание счета %s", number)
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		s.logger.WithError(err).Error("Ошибка при создании счета")
		return nil, err
	}

	if req.InitialDeposit.IsPositive() {
		receiver := account.ID
		_, err := s.ledger.Submit(ctx, model.TransactionRequest{
			ReceiverAccountID: &receiver,
			Amount:            req.InitialDeposit,
			Currency:          currency,
			Type:              model.TransactionTypeDeposit,
			Description:       "Initial deposit",
			IdempotencyKey:    fmt.Sprintf("initial:%d", account.ID),
		})
		if err != nil {
			s.logger.WithError(err).Errorf("Ошибка стартового пополнения счета %d", account.ID)
			return account, err
		}
		if account, err = s.accounts.GetAccount(ctx, account.ID); err != nil {
			return nil, err
		}
	}

	s.logger.Infof("Успешно создан счет %s (%d)", account.AccountNumber, account.ID)
	return account, nil
}

func (s *AccountService) AddCoOwner(ctx context.Context, accountID, userID int64) error {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status == model.AccountStatusClosed {
		return model.NewError(model.KindAccountState, model.ReasonAccountBlocked, "account %d is closed", accountID)
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.accounts.AddAccountOwner(ctx, accountID, userID); err != nil {
		s.logger.WithError(err).Error("Ошибка при добавлении совладельца")
		return err
	}
	s.logger.Infof("Пользователь %d добавлен совладельцем счета %d", userID, accountID)
	return nil
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*model.BankAccount, error) {
	return s.accounts.GetAccount(ctx, id)
}

func (s *AccountService) ListUserAccounts(ctx context.Context, userID int64) ([]model.BankAccount, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.GetUserAccounts(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Ошибка при получении счетов пользователя")
		return nil, err
	}
	return accounts, nil
}

// ChangeStatus меняет статус под блокировкой счета, чтобы не пересечься с проводкой
func (s *AccountService) ChangeStatus(ctx context.Context, id int64, to model.AccountStatus) (*model.BankAccount, error) {
	if !to.Valid() {
		return nil, model.NewError(model.KindValidation, "", "unknown account status %q", to)
	}

	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	account, err := s.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if !account.Status.CanTransition(to) {
		return nil, model.NewError(model.KindAccountState, "",
			"account %d cannot change status from %s to %s", id, account.Status, to)
	}
	if err := s.accounts.UpdateAccountStatus(ctx, id, account.Status, to); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"account_id": id,
		"from":       account.Status,
		"to":         to,
	}).Info("Статус счета изменен")
	account.Status = to
	return account, nil
}
