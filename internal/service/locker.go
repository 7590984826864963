package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bank-ledger/internal/model"
)

// AccountLocker выдает эксклюзивные блокировки счетов внутри процесса.
// Блокировки берутся строго по возрастанию id, поэтому взаимных блокировок нет.
// Запись о счете живет, пока его держат или ждут.
type AccountLocker struct {
	mu      sync.Mutex
	locks   map[int64]*accountLock
	timeout time.Duration
}

type accountLock struct {
	ch   chan struct{}
	refs int // владелец и ожидающие
}

func NewAccountLocker(timeout time.Duration) *AccountLocker {
	return &AccountLocker{
		locks:   make(map[int64]*accountLock),
		timeout: timeout,
	}
}

func (l *AccountLocker) ref(id int64) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[id]
	if !ok {
		lock = &accountLock{ch: make(chan struct{}, 1)}
		l.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (l *AccountLocker) unref(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.locks[id]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

// Acquire блокирует все счета или ни одного. Ожидание каждого счета
// ограничено таймаутом, по истечении возвращается ошибка contention.
func (l *AccountLocker) Acquire(ctx context.Context, ids ...int64) (func(), error) {
	ordered := sortedUnique(ids)
	held := make([]int64, 0, len(ordered))
	locks := make([]*accountLock, 0, len(ordered))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-locks[i].ch
			l.unref(held[i])
		}
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for _, id := range ordered {
		lock := l.ref(id)
		select {
		case lock.ch <- struct{}{}:
			held = append(held, id)
			locks = append(locks, lock)
		case <-timer.C:
			l.unref(id)
			release()
			return nil, model.Contention(fmt.Errorf("lock wait on account %d exceeded %s", id, l.timeout))
		case <-ctx.Done():
			l.unref(id)
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// tracked - число счетов, о которых помнит локер
func (l *AccountLocker) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortedUnique(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
