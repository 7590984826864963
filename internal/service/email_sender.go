package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-mail/mail/v2"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/config"
	"bank-ledger/internal/model"
)

// Notifier доставляет пользователю уведомления о событиях леджера
type Notifier interface {
	NotifyAchievement(ctx context.Context, user *model.User, achievement string) error
	NotifyScheduledTransferFailed(ctx context.Context, user *model.User, st *model.ScheduledTransfer, occurrence time.Time, cause error) error
}

type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

type EmailSender struct {
	dialer  mailSender
	from    string
	logger  *logrus.Logger
	enabled bool
}

func NewEmailSender(cfg config.SMTPConfig, logger *logrus.Logger) *EmailSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	d.Timeout = 10 * time.Second

	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &EmailSender{
		dialer:  d,
		from:    from,
		logger:  logger,
		enabled: cfg.Enabled,
	}
}

var _ Notifier = (*EmailSender)(nil)

func (es *EmailSender) NotifyAchievement(_ context.Context, user *model.User, achievement string) error {
	if !es.enabled {
		es.logger.Debug("Отправка уведомлений отключена")
		return nil
	}

	subject := fmt.Sprintf("Новое достижение: %s", achievement)
	content := fmt.Sprintf(`
		<h1>Поздравляем, %s!</h1>
		<p>Вы получили достижение <strong>%s</strong></p>
		<p>Дата: <strong>%s</strong></p>
		<small>Это автоматическое уведомление, пожалуйста, не отвечайте на него</small>
	`, user.FullName(), achievement, time.Now().Format("02.01.2006 15:04"))

	return es.sendEmail(user.Email, subject, content)
}

func (es *EmailSender) NotifyScheduledTransferFailed(
	_ context.Context,
	user *model.User,
	st *model.ScheduledTransfer,
	occurrence time.Time,
	cause error,
) error {
	if !es.enabled {
		es.logger.Debug("Отправка уведомлений отключена")
		return nil
	}

	reason := string(model.ReasonOf(cause))
	if reason == "" {
		reason = cause.Error()
	}

	subject := "Регулярный перевод не выполнен"
	content := fmt.Sprintf(`
		<h1>Регулярный перевод не выполнен</h1>
		<p>Перевод: <strong>#%d</strong></p>
		<p>Сумма: <strong>%s</strong></p>
		<p>Дата платежа: <strong>%s</strong></p>
		<p>Причина: <strong>%s</strong></p>
		<p>Перевод будет повторен при следующем запуске планировщика</p>
		<small>Это автоматическое уведомление, пожалуйста, не отвечайте на него</small>
	`, st.ID, st.Amount.StringFixed(2), occurrence.Format("02.01.2006"), reason)

	return es.sendEmail(user.Email, subject, content)
}

func (es *EmailSender) sendEmail(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", es.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := es.dialer.DialAndSend(m); err != nil {
		es.logger.WithError(err).Error("Ошибка отправки email")
		return fmt.Errorf("не удалось отправить email: %w", err)
	}

	es.logger.Infof("Email успешно отправлен на %s", to)
	return nil
}
