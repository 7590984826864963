package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

type UserRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewUserRepository(db *sql.DB, logger *logrus.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (first_name, last_name, email, phone, referred_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING user_id, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Phone,
		user.ReferredBy,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				if pqErr.Constraint == "users_email_key" {
					return model.NewError(model.KindConflict, "", "email already exists")
				} else if pqErr.Constraint == "users_phone_key" {
					return model.NewError(model.KindConflict, "", "phone already exists")
				}
			}
		}
		return mapError(err, "create user")
	}

	return nil
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT user_id, first_name, last_name, email, phone, referred_by, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	var user model.User
	var referredBy sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Phone,
		&referredBy,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NotFound("user", id)
		}
		return nil, mapError(err, "get user")
	}
	if referredBy.Valid {
		user.ReferredBy = &referredBy.Int64
	}

	return &user, nil
}

// SetReferrer фиксирует, кто пригласил пользователя. Перезаписать нельзя.
func (r *UserRepository) SetReferrer(ctx context.Context, referredID, referrerID int64) error {
	query := `
		UPDATE users
		SET referred_by = $1,
		    updated_at = NOW()
		WHERE user_id = $2 AND referred_by IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, referrerID, referredID)
	if err != nil {
		return mapError(err, "set referrer")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewError(model.KindConflict, "", "user %d not found or already referred", referredID)
	}

	return nil
}

func (r *UserRepository) CountReferrals(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = $1`, userID).Scan(&count)
	if err != nil {
		return 0, mapError(err, "count referrals")
	}
	return count, nil
}
