package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

type AccountRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewAccountRepository(db *sql.DB, logger *logrus.Logger) *AccountRepository {
	return &AccountRepository{db: db, logger: logger}
}

const accountColumns = `
	a.bank_account_id, a.account_number, a.balance, a.currency, a.status,
	a.payment_system, a.owner_id, a.created_at, a.updated_at,
	s.goal_name, s.goal_amount, s.min_balance, s.interest_rate, s.interest_period, s.next_interest_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.BankAccount, error) {
	var (
		account        model.BankAccount
		ownerID        sql.NullInt64
		goalName       sql.NullString
		goalAmount     decimal.NullDecimal
		minBalance     decimal.NullDecimal
		interestRate   decimal.NullDecimal
		interestPeriod sql.NullInt64
		nextInterest   sql.NullTime
	)
	if err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.Balance,
		&account.Currency,
		&account.Status,
		&account.PaymentSystem,
		&ownerID,
		&account.CreatedAt,
		&account.UpdatedAt,
		&goalName,
		&goalAmount,
		&minBalance,
		&interestRate,
		&interestPeriod,
		&nextInterest,
	); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		account.OwnerID = &ownerID.Int64
	}
	if nextInterest.Valid {
		account.Saving = &model.SavingAccount{
			BankAccountID:    account.ID,
			GoalName:         goalName.String,
			GoalAmount:       goalAmount.Decimal,
			MinBalance:       minBalance.Decimal,
			InterestRate:     interestRate.Decimal,
			InterestPeriod:   int(interestPeriod.Int64),
			NextInterestDate: model.Date(nextInterest.Time),
		}
	}
	return &account, nil
}

// NextAccountNumber атомарно выдает следующий номер в серии платежной системы
func (r *AccountRepository) NextAccountNumber(ctx context.Context, paymentSystem string) (string, error) {
	query := `
		UPDATE payment_system
		SET last_number = last_number + 1
		WHERE payment_system = $1
		RETURNING last_number - 1
	`

	var number int64
	err := r.db.QueryRowContext(ctx, query, paymentSystem).Scan(&number)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", model.NotFound("payment system", paymentSystem)
		}
		return "", mapError(err, "allocate account number")
	}

	return fmt.Sprintf("%s%06d", paymentSystem, number), nil
}

// CreateAccount создает счет, связь с владельцем и накопительную часть одной транзакцией
func (r *AccountRepository) CreateAccount(ctx context.Context, account *model.BankAccount) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bank_accounts (account_number, balance, currency, status, payment_system, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING bank_account_id, created_at, updated_at
	`

	err = tx.QueryRowContext(
		ctx,
		query,
		account.AccountNumber,
		account.Balance,
		account.Currency,
		account.Status,
		account.PaymentSystem,
		account.OwnerID,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return mapError(err, "create account")
	}

	if account.OwnerID != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_bank_accounts (bank_account_id, user_id) VALUES ($1, $2)`,
			account.ID, *account.OwnerID,
		); err != nil {
			return mapError(err, "link account owner")
		}
	}

	if s := account.Saving; s != nil {
		s.BankAccountID = account.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO saving_accounts
			(bank_account_id, goal_name, goal_amount, min_balance, interest_rate, interest_period, next_interest_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.BankAccountID, s.GoalName, s.GoalAmount, s.MinBalance, s.InterestRate, s.InterestPeriod, s.NextInterestDate,
		); err != nil {
			return mapError(err, "create saving account")
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetAccount(ctx context.Context, id int64) (*model.BankAccount, error) {
	query := `SELECT ` + accountColumns + `
		FROM bank_accounts a
		LEFT JOIN saving_accounts s ON s.bank_account_id = a.bank_account_id
		WHERE a.bank_account_id = $1
	`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.NotFound("account", id)
		}
		return nil, mapError(err, "get account")
	}
	return account, nil
}

func (r *AccountRepository) GetUserAccounts(ctx context.Context, userID int64) ([]model.BankAccount, error) {
	query := `SELECT ` + accountColumns + `
		FROM bank_accounts a
		JOIN user_bank_accounts u ON u.bank_account_id = a.bank_account_id
		LEFT JOIN saving_accounts s ON s.bank_account_id = a.bank_account_id
		WHERE u.user_id = $1
		ORDER BY a.bank_account_id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err, "query user accounts")
	}
	defer rows.Close()

	var accounts []model.BankAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	return accounts, rows.Err()
}

func (r *AccountRepository) AddAccountOwner(ctx context.Context, accountID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_bank_accounts (bank_account_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		accountID, userID,
	)
	if err != nil {
		return mapError(err, "add account owner")
	}
	return nil
}

func (r *AccountRepository) GetAccountOwners(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM user_bank_accounts WHERE bank_account_id = $1 ORDER BY user_id`, accountID)
	if err != nil {
		return nil, mapError(err, "query account owners")
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// UpdateAccountStatus меняет статус, только если текущий равен from
func (r *AccountRepository) UpdateAccountStatus(ctx context.Context, id int64, from, to model.AccountStatus) error {
	query := `
		UPDATE bank_accounts
		SET status = $1,
		    updated_at = NOW()
		WHERE bank_account_id = $2 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return mapError(err, "update account status")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewError(model.KindConflict, "", "account %d is not in status %s", id, from)
	}
	return nil
}

func (r *AccountRepository) GetDueSavingAccounts(ctx context.Context, asOf time.Time) ([]model.SavingAccount, error) {
	query := `
		SELECT s.bank_account_id, s.goal_name, s.goal_amount, s.min_balance,
		       s.interest_rate, s.interest_period, s.next_interest_date
		FROM saving_accounts s
		JOIN bank_accounts a ON a.bank_account_id = s.bank_account_id
		WHERE s.next_interest_date <= $1 AND a.status <> 'closed'
		ORDER BY s.next_interest_date, s.bank_account_id
	`

	rows, err := r.db.QueryContext(ctx, query, model.Date(asOf))
	if err != nil {
		return nil, mapError(err, "query due saving accounts")
	}
	defer rows.Close()

	var savings []model.SavingAccount
	for rows.Next() {
		var s model.SavingAccount
		var goalName sql.NullString
		if err := rows.Scan(
			&s.BankAccountID,
			&goalName,
			&s.GoalAmount,
			&s.MinBalance,
			&s.InterestRate,
			&s.InterestPeriod,
			&s.NextInterestDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan saving account: %w", err)
		}
		s.GoalName = goalName.String
		s.NextInterestDate = model.Date(s.NextInterestDate)
		savings = append(savings, s)
	}
	return savings, rows.Err()
}

// AdvanceInterestDate сдвигает дату начисления, если ее еще никто не сдвинул
func (r *AccountRepository) AdvanceInterestDate(ctx context.Context, accountID int64, expected, next time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE saving_accounts
		SET next_interest_date = $1
		WHERE bank_account_id = $2 AND next_interest_date = $3`,
		model.Date(next), accountID, model.Date(expected),
	)
	if err != nil {
		return mapError(err, "advance interest date")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewError(model.KindConflict, "", "interest date of account %d already advanced", accountID)
	}
	return nil
}
