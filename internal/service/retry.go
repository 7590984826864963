package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"bank-ledger/internal/model"
)

// RetryConfig - параметры экспоненциальной задержки между попытками
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
	Retryable  func(error) bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		Retryable:  model.IsRetryable,
	}
}

type Retrier struct {
	config RetryConfig
	logger *logrus.Logger
}

func NewRetrier(config RetryConfig, logger *logrus.Logger) *Retrier {
	if config.Retryable == nil {
		config.Retryable = model.IsRetryable
	}
	return &Retrier{config: config, logger: logger}
}

// Execute повторяет fn, пока ошибка повторяемая и попытки не кончились
func (r *Retrier) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Infof("Операция выполнена с попытки %d", attempt+1)
			}
			return nil
		}
		lastErr = err

		if !r.config.Retryable(err) {
			return err
		}
		if attempt == r.config.MaxRetries {
			break
		}

		delay := r.delay(attempt)
		r.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Debug("Повтор операции после конфликта блокировок")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	r.logger.WithError(lastErr).Warnf("Операция не выполнена после %d попыток", r.config.MaxRetries+1)
	return fmt.Errorf("retry limit exceeded after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		d += d * 0.1 * rand.Float64()
	}
	return time.Duration(d)
}
