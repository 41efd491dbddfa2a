package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCheckedIn   Status = "checked_in"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

type RecurrencePattern string

const (
	PatternWeekly   RecurrencePattern = "weekly"
	PatternBiweekly RecurrencePattern = "biweekly"
	PatternMonthly  RecurrencePattern = "monthly"
)

// Appointment binds a patient to a slot. Doctor, date and window are always
// derived from the slot, never duplicated here. Records are never hard
// deleted; cancelled appointments persist for audit.
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Status    Status
	Type      string
	Priority  int

	ReasonCategory *string

	IsRecurring       bool
	RecurrencePattern *RecurrencePattern
	RecurrenceEndDate *time.Time
	ParentID          *uuid.UUID

	IsFollowUp bool
	FollowUpTo *uuid.UUID

	// Opaque cross-service references, never dereferenced here.
	MedicalRecordID *string
	BillingID       *string
	PrescriptionID  *string

	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the appointment still occupies its slot and can be
// moved or cancelled as part of a chain.
func (a *Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// EventLog is one audit-trail entry.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
