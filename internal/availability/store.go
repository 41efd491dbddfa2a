package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists availability definitions. Plain CRUD; the booking flow never
// touches these.
type Store interface {
	Create(ctx context.Context, a *DoctorAvailability) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorAvailability, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*DoctorAvailability, error)
}

// MemoryStore backs tests and dev mode.
type MemoryStore struct {
	mu    sync.RWMutex
	avail map[uuid.UUID]*DoctorAvailability
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{avail: make(map[uuid.UUID]*DoctorAvailability)}
}

func (m *MemoryStore) Create(_ context.Context, a *DoctorAvailability) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	m.avail[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*DoctorAvailability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.avail[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*DoctorAvailability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*DoctorAvailability
	for _, a := range m.avail {
		if a.DoctorID == doctorID {
			cp := *a
			result = append(result, &cp)
		}
	}
	return result, nil
}
