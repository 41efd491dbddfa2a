package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/slot"
)

// MemoryRepository backs tests, the simulator and dev mode. It needs the slot
// store to answer slot-time queries the Postgres implementation handles with
// a join.
type MemoryRepository struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	events []EventLog
	slots  slot.Store
}

func NewMemoryRepository(slots slot.Store) *MemoryRepository {
	return &MemoryRepository{
		appts: make(map[uuid.UUID]*Appointment),
		slots: slots,
	}
}

func (m *MemoryRepository) Create(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	m.appts[a.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, note string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStatusConflict
	}

	a.Status = to
	stamped := fmt.Sprintf("\n[%s] %s -> %s", time.Now().UTC().Format(time.RFC3339), from, to)
	if note != "" {
		stamped += ": " + note
	}
	a.Notes += stamped
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) ListBySlot(_ context.Context, slotID uuid.UUID) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Appointment
	for _, a := range m.appts {
		if a.SlotID == slotID {
			cp := *a
			result = append(result, &cp)
		}
	}
	sortByCreated(result)
	return result, nil
}

func (m *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryRepository) ListActiveDescendants(_ context.Context, parentID uuid.UUID) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Appointment
	for _, a := range m.appts {
		if !a.Active() {
			continue
		}
		if (a.ParentID != nil && *a.ParentID == parentID) ||
			(a.FollowUpTo != nil && *a.FollowUpTo == parentID) {
			cp := *a
			result = append(result, &cp)
		}
	}
	sortByCreated(result)
	return result, nil
}

func (m *MemoryRepository) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	candidates := make([]*Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		if a.Status == StatusConfirmed {
			cp := *a
			candidates = append(candidates, &cp)
		}
	}
	m.mu.Unlock()

	var result []*Appointment
	for _, a := range candidates {
		s, err := m.slots.GetByID(ctx, a.SlotID)
		if err != nil {
			continue
		}
		if !s.StartTime.Before(from) && s.StartTime.Before(to) {
			result = append(result, a)
		}
	}
	sortByCreated(result)
	return result, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded event log for assertions.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func sortByCreated(appts []*Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		return appts[i].CreatedAt.Before(appts[j].CreatedAt)
	})
}
