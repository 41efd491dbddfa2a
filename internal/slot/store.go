package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("slot not found")
	ErrUnavailable      = errors.New("slot is not available")
	ErrCapacityExceeded = errors.New("slot capacity exceeded")
)

// Store owns TimeSlot persistence and the capacity invariant. Reserve and
// Release serialize concurrent mutation per slot identity; everything else is
// plain CRUD.
type Store interface {
	Create(ctx context.Context, s *TimeSlot) error
	CreateBatch(ctx context.Context, slots []*TimeSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)

	// Reserve atomically re-reads the slot under an exclusive per-slot lock,
	// increments occupancy and recomputes status. Once capacity is exhausted
	// no concurrent Reserve may succeed: losers get ErrCapacityExceeded and
	// the slot is repaired to booked.
	Reserve(ctx context.Context, id uuid.UUID) (*TimeSlot, error)

	// Release decrements occupancy, clamping at zero. It never fails on a
	// double release; sticky statuses keep their status but the capacity is
	// still given back.
	Release(ctx context.Context, id uuid.UUID) (*TimeSlot, error)

	// Block marks a slot blocked and inactive (provider day off).
	Block(ctx context.Context, id uuid.UUID) (*TimeSlot, error)

	// ListByDoctorDate returns all slots for a doctor on a calendar day,
	// ordered by start time.
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*TimeSlot, error)

	// ListAvailable returns bookable slots for a doctor with start time in
	// [from, to), ordered by start time.
	ListAvailable(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*TimeSlot, error)

	// FindByWindow returns the slot exactly matching [start, end), if any.
	FindByWindow(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*TimeSlot, error)

	// FindAvailableAt returns a bookable slot starting exactly at start.
	FindAvailableAt(ctx context.Context, doctorID uuid.UUID, start time.Time) (*TimeSlot, error)
}
