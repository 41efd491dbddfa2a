package slot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestSlot(maxPatients int) *TimeSlot {
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	return &TimeSlot{
		ID:          uuid.New(),
		DoctorID:    uuid.New(),
		Date:        DateOf(start),
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Status:      StatusAvailable,
		MaxPatients: maxPatients,
		IsActive:    true,
		SourceType:  SourceAvailability,
	}
}

func TestRecomputeStatus(t *testing.T) {
	s := newTestSlot(2)

	s.CurrentPatients = 1
	s.RecomputeStatus()
	if s.Status != StatusAvailable {
		t.Fatalf("partially filled slot: got %s, want %s", s.Status, StatusAvailable)
	}

	s.CurrentPatients = 2
	s.RecomputeStatus()
	if s.Status != StatusBooked {
		t.Fatalf("full slot: got %s, want %s", s.Status, StatusBooked)
	}

	s.CurrentPatients = 0
	s.RecomputeStatus()
	if s.Status != StatusAvailable {
		t.Fatalf("emptied slot: got %s, want %s", s.Status, StatusAvailable)
	}

	s.Status = StatusBlocked
	s.RecomputeStatus()
	if s.Status != StatusBlocked {
		t.Fatalf("blocked slot must stay blocked, got %s", s.Status)
	}
}

func TestReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zerolog.Nop())

	s := newTestSlot(2)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Reserve(ctx, s.ID)
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if got.CurrentPatients != 1 || got.Status != StatusAvailable {
		t.Fatalf("after first reserve: patients=%d status=%s", got.CurrentPatients, got.Status)
	}

	got, err = store.Reserve(ctx, s.ID)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if got.CurrentPatients != 2 || got.Status != StatusBooked {
		t.Fatalf("after second reserve: patients=%d status=%s", got.CurrentPatients, got.Status)
	}

	if _, err := store.Reserve(ctx, s.ID); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("reserve on full slot: got %v, want ErrCapacityExceeded", err)
	}

	got, err = store.Release(ctx, s.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.CurrentPatients != 1 || got.Status != StatusAvailable {
		t.Fatalf("after release: patients=%d status=%s", got.CurrentPatients, got.Status)
	}
}

func TestReserveOnStickyStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zerolog.Nop())

	blocked := newTestSlot(3)
	blocked.Status = StatusBlocked
	if err := store.Create(ctx, blocked); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Reserve(ctx, blocked.ID); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("reserve on blocked slot: got %v, want ErrUnavailable", err)
	}

	cancelled := newTestSlot(3)
	cancelled.Status = StatusCancelled
	if err := store.Create(ctx, cancelled); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Reserve(ctx, cancelled.ID); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("reserve on cancelled slot: got %v, want ErrUnavailable", err)
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zerolog.Nop())

	s := newTestSlot(1)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Release(ctx, s.ID)
	if err != nil {
		t.Fatalf("release on empty slot must not fail: %v", err)
	}
	if got.CurrentPatients != 0 {
		t.Fatalf("occupancy went negative: %d", got.CurrentPatients)
	}
}

func TestReleaseKeepsStickyStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zerolog.Nop())

	s := newTestSlot(1)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Reserve(ctx, s.ID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.Block(ctx, s.ID); err != nil {
		t.Fatalf("block: %v", err)
	}

	got, err := store.Release(ctx, s.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.CurrentPatients != 0 {
		t.Fatalf("capacity not given back: %d", got.CurrentPatients)
	}
	if got.Status != StatusBlocked {
		t.Fatalf("blocked slot reopened by release: %s", got.Status)
	}
}

// Under a storm of concurrent reservations, exactly max_patients succeed and
// every loser sees the capacity error.
func TestConcurrentReserveNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zerolog.Nop())

	const capacity = 3
	const attempts = 50

	s := newTestSlot(capacity)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Reserve(ctx, s.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, capacityErrs := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCapacityExceeded):
			capacityErrs++
		default:
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}

	if succeeded != capacity {
		t.Fatalf("got %d successful reservations, want %d", succeeded, capacity)
	}
	if capacityErrs != attempts-capacity {
		t.Fatalf("got %d capacity errors, want %d", capacityErrs, attempts-capacity)
	}

	final, err := store.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.CurrentPatients != capacity || final.Status != StatusBooked {
		t.Fatalf("final state: patients=%d status=%s", final.CurrentPatients, final.Status)
	}
}

func TestListAvailableOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zerolog.Nop())

	doctorID := uuid.New()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	for _, hour := range []int{11, 9, 10} {
		s := newTestSlot(1)
		s.DoctorID = doctorID
		s.StartTime = day.Add(time.Duration(hour) * time.Hour)
		s.EndTime = s.StartTime.Add(30 * time.Minute)
		s.Date = day
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.ListAvailable(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d slots, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].StartTime.Before(got[i-1].StartTime) {
			t.Fatalf("slots out of order: %s before %s", got[i].StartTime, got[i-1].StartTime)
		}
	}
}
