package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
	"bank-ledger/internal/repository"
)

type achievementRule struct {
	name string
	met  func(a *model.UserActivity) bool
}

var savingsMasterThreshold = decimal.NewFromInt(10000)

var achievementRules = []achievementRule{
	{model.AchievementFirstTransaction, func(a *model.UserActivity) bool { return a.TransactionCount >= 1 }},
	{model.AchievementActiveUser, func(a *model.UserActivity) bool { return a.TransactionCount >= 50 }},
	{model.AchievementSavingsMaster, func(a *model.UserActivity) bool { return a.TotalReceived.GreaterThanOrEqual(savingsMasterThreshold) }},
	{model.AchievementAmbassador, func(a *model.UserActivity) bool { return a.ReferralCount >= 3 }},
}

type AchievementService struct {
	users        repository.UserStore
	accounts     repository.AccountStore
	transactions repository.TransactionStore
	achievements repository.AchievementStore
	notifier     Notifier
	logger       *logrus.Logger
}

func NewAchievementService(
	users repository.UserStore,
	accounts repository.AccountStore,
	transactions repository.TransactionStore,
	achievements repository.AchievementStore,
	notifier Notifier,
	logger *logrus.Logger,
) *AchievementService {
	return &AchievementService{
		users:        users,
		accounts:     accounts,
		transactions: transactions,
		achievements: achievements,
		notifier:     notifier,
		logger:       logger,
	}
}

// Handle - подписчик EventBus
func (s *AchievementService) Handle(ctx context.Context, event model.LedgerEvent) {
	switch event.Kind {
	case model.EventTransactionCompleted:
		if event.Transaction == nil {
			return
		}
		for _, userID := range s.ownersOf(ctx, event.Transaction.AccountIDs()) {
			if _, err := s.EvaluateUser(ctx, userID); err != nil {
				s.logger.WithError(err).Warnf("Ошибка проверки достижений пользователя %d", userID)
			}
		}
	case model.EventUserReferred:
		if _, err := s.EvaluateUser(ctx, event.UserID); err != nil {
			s.logger.WithError(err).Warnf("Ошибка проверки достижений пользователя %d", event.UserID)
		}
	}
}

func (s *AchievementService) ownersOf(ctx context.Context, accountIDs []int64) []int64 {
	seen := make(map[int64]bool)
	var users []int64
	for _, accountID := range accountIDs {
		owners, err := s.accounts.GetAccountOwners(ctx, accountID)
		if err != nil {
			s.logger.WithError(err).Warnf("Ошибка получения владельцев счета %d", accountID)
			continue
		}
		for _, id := range owners {
			if !seen[id] {
				seen[id] = true
				users = append(users, id)
			}
		}
	}
	return users
}

// EvaluateUser проверяет все правила и возвращает только новые достижения
func (s *AchievementService) EvaluateUser(ctx context.Context, userID int64) ([]string, error) {
	activity, err := s.transactions.GetUserActivity(ctx, userID)
	if err != nil {
		return nil, err
	}
	referrals, err := s.users.CountReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}
	activity.ReferralCount = referrals

	var granted []string
	for _, rule := range achievementRules {
		if !rule.met(activity) {
			continue
		}
		isNew, err := s.achievements.GrantAchievement(ctx, userID, rule.name)
		if err != nil {
			return granted, err
		}
		if !isNew {
			continue
		}
		granted = append(granted, rule.name)
		s.logger.WithFields(logrus.Fields{
			"user_id":     userID,
			"achievement": rule.name,
		}).Info("Выдано достижение")
		s.notify(ctx, userID, rule.name)
	}
	return granted, nil
}

func (s *AchievementService) GetUserAchievements(ctx context.Context, userID int64) ([]model.UserAchievement, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.achievements.GetUserAchievements(ctx, userID)
}

func (s *AchievementService) notify(ctx context.Context, userID int64, name string) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return
	}
	if err := s.notifier.NotifyAchievement(ctx, user, name); err != nil {
		s.logger.WithError(err).Warn("Не удалось отправить email уведомление")
	}
}
