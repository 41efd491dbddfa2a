package slot

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusBlocked   Status = "blocked"
)

// Sticky reports whether the status survives capacity recomputation. Blocked
// and cancelled slots stay that way until explicitly reopened.
func (s Status) Sticky() bool {
	return s == StatusBlocked || s == StatusCancelled
}

type SourceType string

const (
	SourceAvailability SourceType = "availability"
	SourceManual       SourceType = "manual"
)

// TimeSlot is a bounded-capacity bookable window for one doctor. Occupancy is
// mutated only through Store.Reserve and Store.Release.
type TimeSlot struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	Date            time.Time // midnight UTC of the slot's calendar day
	StartTime       time.Time
	EndTime         time.Time
	Status          Status
	MaxPatients     int
	CurrentPatients int
	IsActive        bool
	AvailabilityID  *uuid.UUID // availability that generated this slot, if any
	SourceType      SourceType
	Department      string
	Location        string
	Room            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecomputeStatus derives status from occupancy. Sticky statuses are left
// untouched.
func (t *TimeSlot) RecomputeStatus() {
	if t.Status.Sticky() {
		return
	}
	if t.CurrentPatients >= t.MaxPatients {
		t.Status = StatusBooked
	} else {
		t.Status = StatusAvailable
	}
}

// Bookable reports whether a reservation could currently succeed.
func (t *TimeSlot) Bookable() bool {
	return t.Status == StatusAvailable && t.IsActive && t.CurrentPatients < t.MaxPatients
}

// Duration returns the slot window length.
func (t *TimeSlot) Duration() time.Duration {
	return t.EndTime.Sub(t.StartTime)
}

// DateOf truncates ts to midnight UTC.
func DateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
