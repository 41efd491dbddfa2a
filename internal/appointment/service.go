package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/clock"
	"github.com/clinicore/clinic-scheduling/internal/lock"
	"github.com/clinicore/clinic-scheduling/internal/notify"
	"github.com/clinicore/clinic-scheduling/internal/slot"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventStatusChanged          = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventRecurrenceGenerated    = "APPOINTMENT_RECURRENCE_GENERATED"
	EventReminderEmitted        = "APPOINTMENT_REMINDER_EMITTED"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSlotBusy          = errors.New("slot is currently being booked, please retry")
	ErrPastSlot          = errors.New("slot is in the past")
	ErrNotRecurring      = errors.New("appointment is not recurring")
)

// Config carries the engine's tunables.
type Config struct {
	// AutoConfirm transitions a freshly booked appointment straight to
	// confirmed.
	AutoConfirm bool
	// RecurrenceHorizon bounds series generation when the parent carries no
	// recurrence end date.
	RecurrenceHorizon time.Duration
}

const defaultRecurrenceHorizon = 90 * 24 * time.Hour

// Service is the scheduling engine: booking, the status state machine,
// rescheduling and recurrence expansion.
type Service struct {
	repo     Repository
	slots    slot.Store
	locker   lock.Locker
	notifier notify.NotificationSink
	billing  notify.BillingSink
	clock    clock.Clock
	cfg      Config
	log      zerolog.Logger
}

func NewService(repo Repository, slots slot.Store, locker lock.Locker,
	notifier notify.NotificationSink, billing notify.BillingSink,
	clk clock.Clock, cfg Config, log zerolog.Logger) *Service {

	if cfg.RecurrenceHorizon <= 0 {
		cfg.RecurrenceHorizon = defaultRecurrenceHorizon
	}
	return &Service{
		repo:     repo,
		slots:    slots,
		locker:   locker,
		notifier: notifier,
		billing:  billing,
		clock:    clk,
		cfg:      cfg,
		log:      log.With().Str("component", "appointment_service").Logger(),
	}
}

// BookingRequest describes a new booking.
type BookingRequest struct {
	SlotID    uuid.UUID
	PatientID uuid.UUID
	Type      string
	Priority  int

	ReasonCategory *string
	Note           string

	Recurring         bool
	Pattern           *RecurrencePattern
	RecurrenceEndDate *time.Time
}

// Book reserves the slot and creates the appointment as one unit: the
// reservation must succeed before the row is created, and a failed create
// gives the seat back. The appointment is auto-confirmed afterwards when
// configured, and a recurring request expands its series best-effort.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	var created *Appointment

	err := s.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		if _, err := s.slots.Reserve(lockCtx, req.SlotID); err != nil {
			return err
		}

		appt := &Appointment{
			ID:                uuid.New(),
			PatientID:         req.PatientID,
			SlotID:            req.SlotID,
			Status:            StatusPending,
			Type:              req.Type,
			Priority:          req.Priority,
			ReasonCategory:    req.ReasonCategory,
			IsRecurring:       req.Recurring,
			RecurrencePattern: req.Pattern,
			RecurrenceEndDate: req.RecurrenceEndDate,
			Notes:             stampNote(s.clock.Now(), req.Note),
		}

		a, err := s.repo.Create(lockCtx, appt)
		if err != nil {
			if _, relErr := s.slots.Release(lockCtx, req.SlotID); relErr != nil {
				s.log.Error().Err(relErr).Str("slot_id", req.SlotID.String()).Msg("release after failed create")
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = a
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"slot_id":    req.SlotID.String(),
		"patient_id": req.PatientID.String(),
	})
	s.emit(ctx, created, "", StatusPending, uuid.Nil, req.Note)

	if s.cfg.AutoConfirm {
		confirmed, err := s.TransitionTo(ctx, created.ID, StatusConfirmed, uuid.Nil, "auto-confirmed on booking")
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", created.ID.String()).Msg("auto-confirm failed")
		} else {
			created = confirmed
		}
	}

	if req.Recurring && req.Pattern != nil {
		if _, err := s.ExpandRecurrence(ctx, created.ID); err != nil {
			s.log.Error().Err(err).Str("appointment_id", created.ID.String()).Msg("recurrence expansion failed")
		}
	}

	return created, nil
}

// TransitionTo validates and executes one status transition with its side
// effects. An invalid transition mutates nothing. Billing and notification
// dispatch are best-effort and never roll the transition back.
func (s *Service) TransitionTo(ctx context.Context, id uuid.UUID, newStatus Status, actorID uuid.UUID, note string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(appt.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, newStatus)
	}

	switch newStatus {
	case StatusCancelled:
		if _, err := s.slots.Release(ctx, appt.SlotID); err != nil {
			s.log.Error().Err(err).Str("slot_id", appt.SlotID.String()).Msg("release on cancellation")
		}
		if appt.BillingID != nil {
			s.billing.OnCancelled(ctx, appt.ID)
		}
	case StatusCompleted:
		s.billing.OnCompleted(ctx, appt.ID)
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, newStatus, note)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"old_status": string(appt.Status),
		"new_status": string(newStatus),
		"actor_id":   actorID.String(),
	})
	s.emit(ctx, updated, appt.Status, newStatus, actorID, note)

	return updated, nil
}

// Cancel cancels one appointment and, when propagate is set, its active
// descendants. Descendant failures are logged and skipped.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actorID uuid.UUID, note string, propagate bool) (*Appointment, error) {
	cancelled, err := s.TransitionTo(ctx, id, StatusCancelled, actorID, note)
	if err != nil {
		return nil, err
	}

	if propagate {
		descendants, err := s.repo.ListActiveDescendants(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", id.String()).Msg("list descendants for cancel")
			return cancelled, nil
		}
		for _, d := range descendants {
			if _, err := s.TransitionTo(ctx, d.ID, StatusCancelled, actorID, note); err != nil {
				s.log.Warn().Err(err).Str("appointment_id", d.ID.String()).Msg("cancel descendant skipped")
			}
		}
	}

	return cancelled, nil
}

// CancelBySlot cancels every active appointment referencing the slot. Used by
// day-off processing. Returns the number cancelled.
func (s *Service) CancelBySlot(ctx context.Context, slotID uuid.UUID, note string) (int, error) {
	appts, err := s.repo.ListBySlot(ctx, slotID)
	if err != nil {
		return 0, fmt.Errorf("list appointments for slot: %w", err)
	}

	cancelled := 0
	for _, a := range appts {
		if !a.Active() {
			continue
		}
		if _, err := s.TransitionTo(ctx, a.ID, StatusCancelled, uuid.Nil, note); err != nil {
			s.log.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("cancel by slot skipped")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// Get returns one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByPatient returns a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// EmitReminders emits a reminder event for every confirmed appointment whose
// slot starts in [from, to). Returns the number emitted.
func (s *Service) EmitReminders(ctx context.Context, from, to time.Time) (int, error) {
	appts, err := s.repo.ListConfirmedStartingBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list upcoming appointments: %w", err)
	}

	for _, a := range appts {
		s.notifier.Emit(ctx, notify.Event{
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			OldStatus:     string(a.Status),
			NewStatus:     string(a.Status),
			Note:          "appointment reminder",
			At:            s.clock.Now(),
		})
		s.logEvent(ctx, a.ID, EventReminderEmitted, map[string]any{
			"patient_id": a.PatientID.String(),
		})
	}
	return len(appts), nil
}

func (s *Service) emit(ctx context.Context, a *Appointment, from, to Status, actorID uuid.UUID, note string) {
	s.notifier.Emit(ctx, notify.Event{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		OldStatus:     string(from),
		NewStatus:     string(to),
		ActorID:       actorID,
		Note:          note,
		At:            s.clock.Now(),
	})
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}

func stampNote(at time.Time, note string) string {
	if note == "" {
		return ""
	}
	return fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), note)
}
