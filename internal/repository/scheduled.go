package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

type ScheduleRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewScheduleRepository(db *sql.DB, logger *logrus.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduledColumns = `
	scheduled_transfer_id, sender_account_id, receiver_account_id, amount, description,
	frequency, start_date, next_occurrence_date, end_date, is_active, created_at`

func scanScheduled(row rowScanner) (*model.ScheduledTransfer, error) {
	var st model.ScheduledTransfer
	var endDate sql.NullTime
	if err := row.Scan(
		&st.ID,
		&st.SenderAccountID,
		&st.ReceiverAccountID,
		&st.Amount,
		&st.Description,
		&st.Frequency,
		&st.StartDate,
		&st.NextOccurrenceDate,
		&endDate,
		&st.IsActive,
		&st.CreatedAt,
	); err != nil {
		return nil, err
	}
	st.StartDate = model.Date(st.StartDate)
	st.NextOccurrenceDate = model.Date(st.NextOccurrenceDate)
	if endDate.Valid {
		end := model.Date(endDate.Time)
		st.EndDate = &end
	}
	return &st, nil
}

func (r *ScheduleRepository) CreateScheduledTransfer(ctx context.Context, st *model.ScheduledTransfer) error {
	query := `
		INSERT INTO scheduled_transfers
		(sender_account_id, receiver_account_id, amount, description, frequency,
		 start_date, next_occurrence_date, end_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING scheduled_transfer_id, created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		st.SenderAccountID,
		st.ReceiverAccountID,
		st.Amount,
		st.Description,
		st.Frequency,
		model.Date(st.StartDate),
		model.Date(st.NextOccurrenceDate),
		st.EndDate,
		st.IsActive,
	).Scan(&st.ID, &st.CreatedAt)
	if err != nil {
		return mapError(err, "create scheduled transfer")
	}
	return nil
}

func (r *ScheduleRepository) GetScheduledTransfer(ctx context.Context, id int64) (*model.ScheduledTransfer, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_transfers WHERE scheduled_transfer_id = $1`

	st, err := scanScheduled(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NotFound("scheduled transfer", id)
		}
		return nil, mapError(err, "get scheduled transfer")
	}
	return st, nil
}

func (r *ScheduleRepository) GetAccountScheduledTransfers(ctx context.Context, accountID int64) ([]model.ScheduledTransfer, error) {
	query := `SELECT ` + scheduledColumns + `
		FROM scheduled_transfers
		WHERE sender_account_id = $1 OR receiver_account_id = $1
		ORDER BY scheduled_transfer_id`

	return r.query(ctx, query, accountID)
}

// GetDueScheduledTransfers возвращает активные шаблоны с датой выполнения не позже asOf,
// срок действия которых на asOf не истек
func (r *ScheduleRepository) GetDueScheduledTransfers(ctx context.Context, asOf time.Time) ([]model.ScheduledTransfer, error) {
	query := `SELECT ` + scheduledColumns + `
		FROM scheduled_transfers
		WHERE is_active AND next_occurrence_date <= $1
		  AND (end_date IS NULL OR end_date >= $1)
		ORDER BY next_occurrence_date, scheduled_transfer_id`

	return r.query(ctx, query, model.Date(asOf))
}

func (r *ScheduleRepository) query(ctx context.Context, query string, args ...any) ([]model.ScheduledTransfer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query scheduled transfers")
	}
	defer rows.Close()

	var transfers []model.ScheduledTransfer
	for rows.Next() {
		st, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled transfer: %w", err)
		}
		transfers = append(transfers, *st)
	}
	return transfers, rows.Err()
}

// AdvanceScheduledTransfer сдвигает дату, только если она все еще равна expected.
// Так два прохода планировщика не сдвинут одно вхождение дважды.
func (r *ScheduleRepository) AdvanceScheduledTransfer(ctx context.Context, id int64, expected, next time.Time, active bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_transfers
		SET next_occurrence_date = $1, is_active = $2
		WHERE scheduled_transfer_id = $3 AND next_occurrence_date = $4 AND is_active`,
		model.Date(next), active, id, model.Date(expected),
	)
	if err != nil {
		return mapError(err, "advance scheduled transfer")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewError(model.KindConflict, "", "scheduled transfer %d already advanced", id)
	}
	return nil
}

// DeactivateExpiredTransfers гасит расписания с end_date раньше asOf
func (r *ScheduleRepository) DeactivateExpiredTransfers(ctx context.Context, asOf time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_transfers
		SET is_active = FALSE
		WHERE is_active AND end_date IS NOT NULL AND end_date < $1`,
		model.Date(asOf),
	)
	if err != nil {
		return 0, mapError(err, "deactivate expired transfers")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		r.logger.Infof("Деактивировано %d истекших регулярных переводов", n)
	}
	return n, nil
}
