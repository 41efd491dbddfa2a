package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("appointment not found")
	ErrStatusConflict = errors.New("appointment status changed concurrently")
)

// Repository contains all DB interactions needed by the scheduling engine.
type Repository interface {
	Create(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus compare-and-sets the status and appends a timestamped note
	// to the audit trail in the same write. Returns ErrStatusConflict if the
	// stored status no longer matches from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, note string) (*Appointment, error)

	ListBySlot(ctx context.Context, slotID uuid.UUID) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, error)

	// ListActiveDescendants returns the pending/confirmed children of a
	// recurring or follow-up chain head.
	ListActiveDescendants(ctx context.Context, parentID uuid.UUID) ([]*Appointment, error)

	// ListConfirmedStartingBetween returns confirmed appointments whose slot
	// starts in [from, to). Used by the reminder worker.
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)

	// InsertEvent appends to the audit event log.
	InsertEvent(ctx context.Context, ev EventLog) error
}
