package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

type TransactionRepository struct {
	db          *sql.DB
	lockTimeout time.Duration
	logger      *logrus.Logger
}

func NewTransactionRepository(db *sql.DB, lockTimeout time.Duration, logger *logrus.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, lockTimeout: lockTimeout, logger: logger}
}

const transactionColumns = `
	transaction_id, sender_account_id, receiver_account_id, amount, converted_amount,
	currency, description, type, status, failure_reason, idempotency_key, created_at, updated_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn            model.Transaction
		sender         sql.NullInt64
		receiver       sql.NullInt64
		failureReason  sql.NullString
		idempotencyKey sql.NullString
	)
	if err := row.Scan(
		&txn.ID,
		&sender,
		&receiver,
		&txn.Amount,
		&txn.ConvertedAmount,
		&txn.Currency,
		&txn.Description,
		&txn.Type,
		&txn.Status,
		&failureReason,
		&idempotencyKey,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if sender.Valid {
		txn.SenderAccountID = &sender.Int64
	}
	if receiver.Valid {
		txn.ReceiverAccountID = &receiver.Int64
	}
	txn.FailureReason = model.FailureReason(failureReason.String)
	if idempotencyKey.Valid {
		txn.IdempotencyKey = &idempotencyKey.String
	}
	return &txn, nil
}

func nullReason(r model.FailureReason) sql.NullString {
	return sql.NullString{String: string(r), Valid: r != ""}
}

// CommitPosting блокирует счета в порядке возрастания id, проверяет нижнюю
// границу баланса отправителя и фиксирует обе проводки вместе со строкой транзакции.
func (r *TransactionRepository) CommitPosting(ctx context.Context, posting *model.Posting) error {
	txn := posting.Transaction

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return mapError(err, "set lock timeout")
	}

	ids := txn.AccountIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows, err := tx.QueryContext(ctx, `
		SELECT bank_account_id, status FROM bank_accounts
		WHERE bank_account_id = ANY($1)
		ORDER BY bank_account_id
		FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return mapError(err, "lock accounts")
	}
	statuses := make(map[int64]model.AccountStatus, len(ids))
	for rows.Next() {
		var (
			id     int64
			status model.AccountStatus
		)
		if err := rows.Scan(&id, &status); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan locked account: %w", err)
		}
		statuses[id] = status
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return mapError(err, "lock accounts")
	}
	rows.Close()
	if len(statuses) != len(ids) {
		return model.NotFound("account", ids)
	}

	// статус мог смениться после проверки в сервисе
	if txn.SenderAccountID != nil && statuses[*txn.SenderAccountID] != model.AccountStatusActive {
		return model.NewError(model.KindAccountState, model.ReasonAccountBlocked,
			"sender account %d is %s", *txn.SenderAccountID, statuses[*txn.SenderAccountID])
	}
	if txn.ReceiverAccountID != nil && statuses[*txn.ReceiverAccountID] == model.AccountStatusClosed {
		return model.NewError(model.KindAccountState, model.ReasonAccountBlocked,
			"account %d is closed", *txn.ReceiverAccountID)
	}

	if txn.SenderAccountID != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE bank_accounts
			SET balance = balance - $1,
			    updated_at = NOW()
			WHERE bank_account_id = $2 AND status = 'active' AND balance - $1 >= $3`,
			txn.Amount, *txn.SenderAccountID, posting.SenderFloor,
		)
		if err != nil {
			return mapError(err, "debit sender")
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return model.NewError(model.KindInsufficientFunds, model.ReasonInsufficientFunds,
				"insufficient funds on account %d", *txn.SenderAccountID)
		}
	}

	if txn.ReceiverAccountID != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE bank_accounts
			SET balance = balance + $1,
			    updated_at = NOW()
			WHERE bank_account_id = $2 AND status <> 'closed'`,
			txn.Credited(), *txn.ReceiverAccountID,
		)
		if err != nil {
			return mapError(err, "credit receiver")
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return model.NewError(model.KindAccountState, model.ReasonAccountBlocked,
				"account %d is closed", *txn.ReceiverAccountID)
		}
	}

	txn.Status = model.TransactionStatusCompleted
	txn.FailureReason = ""
	if txn.ID == 0 {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO transactions
			(sender_account_id, receiver_account_id, amount, converted_amount, currency,
			 description, type, status, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING transaction_id, created_at, updated_at`,
			txn.SenderAccountID, txn.ReceiverAccountID, txn.Amount, txn.ConvertedAmount, txn.Currency,
			txn.Description, txn.Type, txn.Status, txn.IdempotencyKey,
		).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
		if err != nil {
			return mapError(err, "insert transaction")
		}
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE transactions
			SET status = $1, converted_amount = $2, failure_reason = NULL, updated_at = NOW()
			WHERE transaction_id = $3 AND status = 'pending'
			RETURNING updated_at`,
			txn.Status, txn.ConvertedAmount, txn.ID,
		).Scan(&txn.UpdatedAt)
		if err == sql.ErrNoRows {
			return model.NewError(model.KindConflict, "", "transaction %d is not pending", txn.ID)
		}
		if err != nil {
			return mapError(err, "settle transaction")
		}
	}

	if err := tx.Commit(); err != nil {
		return mapError(err, "commit posting")
	}

	r.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"amount":         txn.Amount.String(),
		"type":           txn.Type,
	}).Debug("Проводка зафиксирована")
	return nil
}

// RecordTransaction пишет транзакцию без движения средств: failed или pending.
// Для уже существующей pending-строки обновляет статус и причину.
func (r *TransactionRepository) RecordTransaction(ctx context.Context, txn *model.Transaction) error {
	if txn.ID != 0 {
		err := r.db.QueryRowContext(ctx, `
			UPDATE transactions
			SET status = $1, failure_reason = $2, converted_amount = $3, updated_at = NOW()
			WHERE transaction_id = $4 AND status = 'pending'
			RETURNING updated_at`,
			txn.Status, nullReason(txn.FailureReason), txn.ConvertedAmount, txn.ID,
		).Scan(&txn.UpdatedAt)
		if err == sql.ErrNoRows {
			return model.NewError(model.KindConflict, "", "transaction %d is not pending", txn.ID)
		}
		return mapError(err, "update transaction")
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO transactions
		(sender_account_id, receiver_account_id, amount, converted_amount, currency,
		 description, type, status, failure_reason, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING transaction_id, created_at, updated_at`,
		txn.SenderAccountID, txn.ReceiverAccountID, txn.Amount, txn.ConvertedAmount, txn.Currency,
		txn.Description, txn.Type, txn.Status, nullReason(txn.FailureReason), txn.IdempotencyKey,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return mapError(err, "record transaction")
	}
	return nil
}

func (r *TransactionRepository) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NotFound("transaction", id)
		}
		return nil, mapError(err, "get transaction")
	}
	return txn, nil
}

func (r *TransactionRepository) GetCompletedByKey(ctx context.Context, key string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE idempotency_key = $1 AND status = 'completed'`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NotFound("transaction with key", key)
		}
		return nil, mapError(err, "get transaction by key")
	}
	return txn, nil
}

// ListTransactions возвращает транзакции по фильтру, новые первыми
func (r *TransactionRepository) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`

	args := []any{}
	argIdx := 1

	if filter.AccountID != 0 {
		query += fmt.Sprintf(" AND (sender_account_id = $%d OR receiver_account_id = $%d)", argIdx, argIdx)
		args = append(args, filter.AccountID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, filter.To)
		argIdx++
	}

	query += " ORDER BY created_at DESC, transaction_id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list transactions")
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}

func (r *TransactionRepository) UpdateTransactionStatus(ctx context.Context, id int64, from, to model.TransactionStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE transaction_id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return mapError(err, "update transaction status")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewError(model.KindConflict, "", "transaction %d is not %s", id, from)
	}
	return nil
}

// GetUserActivity считает завершенные операции по счетам пользователя
// и сумму зачислений на них
func (r *TransactionRepository) GetUserActivity(ctx context.Context, userID int64) (*model.UserActivity, error) {
	query := `
		SELECT COUNT(DISTINCT t.transaction_id),
		       COALESCE(SUM(CASE WHEN t.receiver_account_id = u.bank_account_id
		                         THEN COALESCE(t.converted_amount, t.amount) ELSE 0 END), 0)
		FROM user_bank_accounts u
		JOIN transactions t
		  ON t.status = 'completed'
		 AND (t.sender_account_id = u.bank_account_id OR t.receiver_account_id = u.bank_account_id)
		WHERE u.user_id = $1
	`

	var activity model.UserActivity
	var received decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&activity.TransactionCount, &received); err != nil {
		return nil, mapError(err, "get user activity")
	}
	activity.TotalReceived = received
	return &activity, nil
}
