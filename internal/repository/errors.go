package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"bank-ledger/internal/model"
)

// mapError переводит ошибки Postgres в доменные
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "lock_not_available", "deadlock_detected", "serialization_failure":
			return model.Contention(fmt.Errorf("%s: %w", op, err))
		case "unique_violation":
			return &model.Error{Kind: model.KindConflict, Msg: fmt.Sprintf("%s: duplicate %s", op, pqErr.Constraint), Err: err}
		case "foreign_key_violation":
			return &model.Error{Kind: model.KindNotFound, Msg: fmt.Sprintf("%s: referenced row not found", op), Err: err}
		case "check_violation":
			return &model.Error{Kind: model.KindValidation, Msg: fmt.Sprintf("%s: %s", op, pqErr.Constraint), Err: err}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
