package slot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryStore is an in-memory Store used by tests, the simulator and dev
// mode. A single store mutex serializes Reserve/Release, which is one of the
// sanctioned per-slot serialization strategies.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*TimeSlot
	log   zerolog.Logger
}

func NewMemoryStore(log zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		slots: make(map[uuid.UUID]*TimeSlot),
		log:   log.With().Str("component", "slot_memory_store").Logger(),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(s)
}

func (m *MemoryStore) CreateBatch(_ context.Context, slots []*TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		if err := m.createLocked(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) createLocked(s *TimeSlot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.Date.IsZero() {
		s.Date = DateOf(s.StartTime)
	}
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Reserve(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrNotFound
	}

	if !s.Bookable() {
		if !s.Status.Sticky() && s.CurrentPatients >= s.MaxPatients {
			// repair: a full slot must read as booked
			s.Status = StatusBooked
			s.UpdatedAt = time.Now()
			return nil, ErrCapacityExceeded
		}
		return nil, ErrUnavailable
	}

	s.CurrentPatients++
	s.RecomputeStatus()
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Release(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrNotFound
	}

	if s.CurrentPatients > 0 {
		s.CurrentPatients--
	} else {
		m.log.Warn().Str("slot_id", id.String()).Msg("release on empty slot, occupancy clamped at zero")
	}
	s.RecomputeStatus()
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Block(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrNotFound
	}

	s.Status = StatusBlocked
	s.IsActive = false
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := DateOf(date)
	var result []*TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(day) {
			cp := *s
			result = append(result, &cp)
		}
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryStore) ListAvailable(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*TimeSlot
	for _, s := range m.slots {
		if s.DoctorID != doctorID || !s.Bookable() {
			continue
		}
		if s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sortByStart(result)
	return result, nil
}

func (m *MemoryStore) FindByWindow(_ context.Context, doctorID uuid.UUID, start, end time.Time) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.StartTime.Equal(start) && s.EndTime.Equal(end) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindAvailableAt(_ context.Context, doctorID uuid.UUID, start time.Time) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.StartTime.Equal(start) && s.Bookable() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func sortByStart(slots []*TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}
