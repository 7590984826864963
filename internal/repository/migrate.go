package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

// Migrate создает таблицы и справочники, если их еще нет
func Migrate(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	logger.Info("Применение схемы базы данных...")
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Схема базы данных применена")
	return nil
}
