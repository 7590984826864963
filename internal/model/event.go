package model

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventTransactionCompleted EventKind = "transaction.completed"
	EventTransactionFailed    EventKind = "transaction.failed"
	EventUserReferred         EventKind = "user.referred"
)

// LedgerEvent рассылается подписчикам после фиксации изменений
type LedgerEvent struct {
	ID          uuid.UUID    `json:"id"`
	Kind        EventKind    `json:"kind"`
	Transaction *Transaction `json:"transaction,omitempty"`
	UserID      int64        `json:"user_id,omitempty"`    // реферер для user.referred
	RelatedID   int64        `json:"related_id,omitempty"` // приглашенный пользователь
	OccurredAt  time.Time    `json:"occurred_at"`
}
