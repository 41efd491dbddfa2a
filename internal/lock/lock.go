package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("slot lock not acquired")

// Locker serializes the compound booking critical section for one slot
// identity. Implementations may fail fast with ErrNotAcquired (distributed
// try-lock) or block until the section is free (in-process mutex).
type Locker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

// KeyedMutex is an in-process Locker keyed by slot id. It blocks rather than
// failing fast, so every caller eventually gets a definitive answer.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *KeyedMutex) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	k.mu.Lock()
	m, ok := k.locks[slotID]
	if !ok {
		m = &sync.Mutex{}
		k.locks[slotID] = m
	}
	k.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
