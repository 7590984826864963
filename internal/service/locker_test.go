package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-ledger/internal/model"
)

func TestAccountLockerTimesOutWithContention(t *testing.T) {
	locker := NewAccountLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 2, 1)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, 2)
	assert.ErrorIs(t, err, model.ErrContention)
	assert.True(t, model.IsRetryable(err))

	release()
	release() // повторный вызов безопасен

	again, err := locker.Acquire(ctx, 1, 2)
	require.NoError(t, err)
	again()
}

func TestAccountLockerReleasesPartialAcquisition(t *testing.T) {
	locker := NewAccountLocker(20 * time.Millisecond)
	ctx := context.Background()

	hold, err := locker.Acquire(ctx, 2)
	require.NoError(t, err)
	defer hold()

	// 1 захвачен, 2 занят: по таймауту 1 должен освободиться
	_, err = locker.Acquire(ctx, 1, 2)
	require.ErrorIs(t, err, model.ErrContention)

	release, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)
	release()
}

func TestAccountLockerWaitsForRelease(t *testing.T) {
	locker := NewAccountLocker(time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 7)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		r, err := locker.Acquire(ctx, 7)
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	release()
	assert.NoError(t, <-done)
	assert.Equal(t, 0, locker.tracked())
}

func TestAccountLockerHonoursContext(t *testing.T) {
	locker := NewAccountLocker(time.Second)

	release, err := locker.Acquire(context.Background(), 3)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccountLockerForgetsReleasedAccounts(t *testing.T) {
	locker := NewAccountLocker(20 * time.Millisecond)
	ctx := context.Background()

	for id := int64(1); id <= 100; id++ {
		release, err := locker.Acquire(ctx, id, id+1000)
		require.NoError(t, err)
		release()
	}
	assert.Equal(t, 0, locker.tracked())

	hold, err := locker.Acquire(ctx, 5)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, 4, 5)
	require.ErrorIs(t, err, model.ErrContention)
	assert.Equal(t, 1, locker.tracked())

	hold()
	assert.Equal(t, 0, locker.tracked())
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []int64{1, 3, 5}, sortedUnique([]int64{5, 1, 3, 5, 1}))
	assert.Empty(t, sortedUnique(nil))
}
