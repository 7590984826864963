package repository

import (
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"
)

// PostgresStore собирает все репозитории над одним пулом соединений
type PostgresStore struct {
	*UserRepository
	*AccountRepository
	*TransactionRepository
	*ScheduleRepository
	*AchievementRepository
}

func NewPostgresStore(db *sql.DB, lockTimeout time.Duration, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		UserRepository:        NewUserRepository(db, logger),
		AccountRepository:     NewAccountRepository(db, logger),
		TransactionRepository: NewTransactionRepository(db, lockTimeout, logger),
		ScheduleRepository:    NewScheduleRepository(db, logger),
		AchievementRepository: NewAchievementRepository(db, logger),
	}
}

var _ Store = (*PostgresStore)(nil)
