package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

// MessagePublisher - транспорт исходящих событий
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// NATSClient - тонкая обертка над соединением NATS
type NATSClient struct {
	conn *nats.Conn
}

func NewNATSClient(url string, logger *logrus.Logger) (*NATSClient, error) {
	conn, err := nats.Connect(url,
		nats.Name("bank-ledger"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("Соединение с NATS потеряно")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("Переподключение к NATS: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server: %w", err)
	}
	return &NATSClient{conn: conn}, nil
}

func (c *NATSClient) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close дожидается отправки буфера и закрывает соединение
func (c *NATSClient) Close() {
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
}

// EventPublisher пересылает события шины во внешний брокер.
// Subject: "ledger." + вид события.
type EventPublisher struct {
	transport MessagePublisher
	prefix    string
	logger    *logrus.Logger
}

func NewEventPublisher(transport MessagePublisher, logger *logrus.Logger) *EventPublisher {
	return &EventPublisher{transport: transport, prefix: "ledger.", logger: logger}
}

func (p *EventPublisher) Subject(kind model.EventKind) string {
	return p.prefix + string(kind)
}

// Handle подписывается на EventBus. Ошибка брокера не влияет на уже
// зафиксированную операцию, поэтому только логируется.
func (p *EventPublisher) Handle(ctx context.Context, event model.LedgerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Ошибка сериализации события")
		return
	}
	subject := p.Subject(event.Kind)
	if err := p.transport.Publish(subject, data); err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("Ошибка публикации события в NATS")
		return
	}
	p.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": event.ID,
	}).Debug("Событие опубликовано")
}
