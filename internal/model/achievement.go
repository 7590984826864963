package model

import "time"

// Названия достижений из справочника achievements
const (
	AchievementFirstTransaction = "First Transaction"
	AchievementActiveUser       = "Active User"
	AchievementSavingsMaster    = "Savings Master"
	AchievementAmbassador       = "Ambassador"
)

type Achievement struct {
	ID          int64  `json:"id" db:"achievement_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

type UserAchievement struct {
	UserID        int64     `json:"user_id" db:"user_id"`
	AchievementID int64     `json:"achievement_id" db:"achievement_id"`
	Name          string    `json:"name" db:"name"`
	AchievedAt    time.Time `json:"achieved_at" db:"achieved_at"`
}
