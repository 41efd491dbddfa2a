package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event describes an appointment state change or reminder for external
// delivery. The engine never consults a delivery result.
type Event struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	OldStatus     string
	NewStatus     string
	ActorID       uuid.UUID
	Note          string
	At            time.Time
}

// NotificationSink receives scheduling events fire-and-forget.
type NotificationSink interface {
	Emit(ctx context.Context, ev Event)
}

// BillingSink receives billing triggers. Both calls are best-effort; failures
// inside an implementation must never surface to the caller.
type BillingSink interface {
	OnCancelled(ctx context.Context, appointmentID uuid.UUID)
	OnCompleted(ctx context.Context, appointmentID uuid.UUID)
}

// LogSink writes events to the log and nothing else. It stands in for the
// real notification dispatcher in dev setups and tests.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Emit(_ context.Context, ev Event) {
	s.Log.Info().
		Str("appointment_id", ev.AppointmentID.String()).
		Str("old_status", ev.OldStatus).
		Str("new_status", ev.NewStatus).
		Str("actor_id", ev.ActorID.String()).
		Str("note", ev.Note).
		Msg("scheduling event")
}

// LogBillingSink logs billing triggers without dispatching them anywhere.
type LogBillingSink struct {
	Log zerolog.Logger
}

func (s LogBillingSink) OnCancelled(_ context.Context, id uuid.UUID) {
	s.Log.Info().Str("appointment_id", id.String()).Msg("billing cancellation signal")
}

func (s LogBillingSink) OnCompleted(_ context.Context, id uuid.UUID) {
	s.Log.Info().Str("appointment_id", id.String()).Msg("billing completion signal")
}
