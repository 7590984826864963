package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

type EventHandler func(ctx context.Context, event model.LedgerEvent)

// EventBus синхронно раздает события подписчикам в порядке подписки.
// Паника подписчика не ломает публикацию.
type EventBus struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *logrus.Logger
}

func NewEventBus(logger *logrus.Logger) *EventBus {
	return &EventBus{logger: logger}
}

func (b *EventBus) Subscribe(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *EventBus) Publish(ctx context.Context, event model.LedgerEvent) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, h, event)
	}
}

func (b *EventBus) dispatch(ctx context.Context, h EventHandler, event model.LedgerEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event": event.Kind,
				"panic": r,
			}).Error("Паника в обработчике события")
		}
	}()
	h(ctx, event)
}
