package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

type AchievementRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewAchievementRepository(db *sql.DB, logger *logrus.Logger) *AchievementRepository {
	return &AchievementRepository{db: db, logger: logger}
}

// GrantAchievement выдает достижение по имени. Возвращает false, если оно уже было.
func (r *AchievementRepository) GrantAchievement(ctx context.Context, userID int64, name string) (bool, error) {
	query := `
		INSERT INTO user_achievements (user_id, achievement_id)
		SELECT $1, achievement_id FROM achievements WHERE name = $2
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, userID, name)
	if err != nil {
		return false, mapError(err, "grant achievement")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *AchievementRepository) GetUserAchievements(ctx context.Context, userID int64) ([]model.UserAchievement, error) {
	query := `
		SELECT ua.user_id, ua.achievement_id, a.name, ua.achieved_at
		FROM user_achievements ua
		JOIN achievements a ON a.achievement_id = ua.achievement_id
		WHERE ua.user_id = $1
		ORDER BY ua.achieved_at, ua.achievement_id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "query user achievements")
	}
	defer rows.Close()

	var achievements []model.UserAchievement
	for rows.Next() {
		var a model.UserAchievement
		if err := rows.Scan(&a.UserID, &a.AchievementID, &a.Name, &a.AchievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}
