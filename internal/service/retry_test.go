package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"bank-ledger/internal/model"
)

func newTestRetrier(maxRetries int) *Retrier {
	logger, _ := test.NewNullLogger()
	return NewRetrier(RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Multiplier: 2,
	}, logger)
}

func TestRetrierExecute(t *testing.T) {
	errBusy := model.Contention(errors.New("lock wait"))
	errFunds := model.NewError(model.KindInsufficientFunds, model.ReasonInsufficientFunds, "no money")

	testCases := []struct {
		name       string
		failures   []error
		wantCalls  int
		assertFunc func(t *testing.T, err error)
	}{
		{
			name:      "success after contention",
			failures:  []error{errBusy, errBusy},
			wantCalls: 3,
			assertFunc: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:      "non retryable error returned as is",
			failures:  []error{errFunds},
			wantCalls: 1,
			assertFunc: func(t *testing.T, err error) {
				assert.Same(t, errFunds, err)
			},
		},
		{
			name:      "retry limit exceeded",
			failures:  []error{errBusy, errBusy, errBusy, errBusy},
			wantCalls: 3,
			assertFunc: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, model.ErrContention)
				assert.Contains(t, err.Error(), "retry limit exceeded after 3 attempts")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := newTestRetrier(2).Execute(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= len(tc.failures) {
					return tc.failures[calls-1]
				}
				return nil
			})
			assert.Equal(t, tc.wantCalls, calls)
			tc.assertFunc(t, err)
		})
	}
}

func TestRetrierStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := newTestRetrier(3).Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetrierDelayIsCapped(t *testing.T) {
	r := newTestRetrier(10)
	assert.Equal(t, time.Millisecond, r.delay(0))
	assert.Equal(t, 2*time.Millisecond, r.delay(1))
	assert.Equal(t, 2*time.Millisecond, r.delay(8))
}
