package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/lock"
	"github.com/clinicore/clinic-scheduling/internal/slot"
)

const (
	sameDayAlternativeLimit = 5
	weekAlternativeLimit    = 10
	alternativeSearchDays   = 7
)

// SlotUnavailableError reports that the requested slot cannot take the
// appointment and carries a ranked list of alternatives for the caller.
type SlotUnavailableError struct {
	SlotID       uuid.UUID
	Alternatives []*slot.TimeSlot
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s is unavailable (%d alternatives)", e.SlotID, len(e.Alternatives))
}

// Reschedule moves an appointment onto targetSlotID. The original is marked
// rescheduled and its seat released; a new pending appointment copying the
// clinical fields takes the target seat. If reserving the target fails after
// the original was already moved, the move is compensated: the old seat is
// re-reserved and the original returned to pending. With propagate set, every
// active descendant of a recurring chain is shifted by the same day offset,
// each one best-effort.
func (s *Service) Reschedule(ctx context.Context, id, targetSlotID uuid.UUID, actorID uuid.UUID, note string, propagate bool) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	oldSlot, err := s.slots.GetByID(ctx, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("load current slot: %w", err)
	}
	target, err := s.slots.GetByID(ctx, targetSlotID)
	if err != nil {
		return nil, err
	}

	if !target.Bookable() {
		alternatives, altErr := s.findAlternatives(ctx, target)
		if altErr != nil {
			s.log.Error().Err(altErr).Str("slot_id", targetSlotID.String()).Msg("alternative search failed")
		}
		return nil, &SlotUnavailableError{SlotID: targetSlotID, Alternatives: alternatives}
	}
	if target.StartTime.Before(s.clock.Now()) {
		return nil, ErrPastSlot
	}

	moved, err := s.moveToSlot(ctx, appt, target, actorID, note)
	if err != nil {
		return nil, err
	}

	if propagate {
		dayOffset := daysBetween(oldSlot.Date, target.Date)
		s.propagateReschedule(ctx, appt.ID, dayOffset, actorID)
	}

	return moved, nil
}

// moveToSlot performs the single-appointment reschedule under the target
// slot's lock.
func (s *Service) moveToSlot(ctx context.Context, appt *Appointment, target *slot.TimeSlot, actorID uuid.UUID, note string) (*Appointment, error) {
	var moved *Appointment

	err := s.locker.WithSlotLock(ctx, target.ID, func(lockCtx context.Context) error {
		original, err := s.TransitionTo(lockCtx, appt.ID, StatusRescheduled, actorID, note)
		if err != nil {
			return err
		}
		// rescheduled is not cancelled, so the state machine did not release
		// the seat; the engine does it directly
		if _, err := s.slots.Release(lockCtx, original.SlotID); err != nil {
			s.log.Error().Err(err).Str("slot_id", original.SlotID.String()).Msg("release old slot")
		}

		if _, err := s.slots.Reserve(lockCtx, target.ID); err != nil {
			s.compensateMove(lockCtx, original)
			return fmt.Errorf("reserve target slot: %w", err)
		}

		newAppt := &Appointment{
			ID:                uuid.New(),
			PatientID:         original.PatientID,
			SlotID:            target.ID,
			Status:            StatusPending,
			Type:              original.Type,
			Priority:          original.Priority,
			ReasonCategory:    original.ReasonCategory,
			IsRecurring:       original.IsRecurring,
			RecurrencePattern: original.RecurrencePattern,
			RecurrenceEndDate: original.RecurrenceEndDate,
			ParentID:          original.ParentID,
			IsFollowUp:        original.IsFollowUp,
			FollowUpTo:        original.FollowUpTo,
			MedicalRecordID:   original.MedicalRecordID,
			BillingID:         original.BillingID,
			PrescriptionID:    original.PrescriptionID,
			Notes:             stampNote(s.clock.Now(), fmt.Sprintf("rescheduled from appointment %s", original.ID)),
		}

		a, err := s.repo.Create(lockCtx, newAppt)
		if err != nil {
			if _, relErr := s.slots.Release(lockCtx, target.ID); relErr != nil {
				s.log.Error().Err(relErr).Str("slot_id", target.ID.String()).Msg("release target after failed create")
			}
			s.compensateMove(lockCtx, original)
			return fmt.Errorf("create rescheduled appointment: %w", err)
		}
		moved = a
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.logEvent(ctx, moved.ID, EventAppointmentRescheduled, map[string]any{
		"origin_appointment_id": appt.ID.String(),
		"slot_id":               target.ID.String(),
		"actor_id":              actorID.String(),
	})
	s.emit(ctx, moved, StatusRescheduled, StatusPending, actorID, note)

	return moved, nil
}

// compensateMove undoes a half-finished reschedule: the old seat is taken
// back and the original appointment returns to pending.
func (s *Service) compensateMove(ctx context.Context, original *Appointment) {
	if _, err := s.slots.Reserve(ctx, original.SlotID); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", original.ID.String()).
			Str("slot_id", original.SlotID.String()).
			Msg("compensation could not re-reserve old slot")
	}
	if _, err := s.repo.UpdateStatus(ctx, original.ID, StatusRescheduled, StatusPending, "reschedule rolled back"); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", original.ID.String()).
			Msg("compensation could not restore status")
	}
}

// propagateReschedule shifts every active descendant by dayOffset days,
// keeping each one's start time of day. Individual failures are logged and
// skipped.
func (s *Service) propagateReschedule(ctx context.Context, headID uuid.UUID, dayOffset int, actorID uuid.UUID) {
	descendants, err := s.repo.ListActiveDescendants(ctx, headID)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", headID.String()).Msg("list descendants for reschedule")
		return
	}

	for _, d := range descendants {
		dSlot, err := s.slots.GetByID(ctx, d.SlotID)
		if err != nil {
			s.log.Warn().Err(err).Str("appointment_id", d.ID.String()).Msg("descendant slot missing, skipped")
			continue
		}
		newStart := dSlot.StartTime.AddDate(0, 0, dayOffset)

		candidate, err := s.slots.FindAvailableAt(ctx, dSlot.DoctorID, newStart)
		if err != nil {
			s.log.Warn().Err(err).
				Str("appointment_id", d.ID.String()).
				Time("wanted_start", newStart).
				Msg("no slot for shifted descendant, skipped")
			continue
		}
		if _, err := s.moveToSlot(ctx, d, candidate, actorID, "moved with recurring series"); err != nil {
			s.log.Warn().Err(err).Str("appointment_id", d.ID.String()).Msg("descendant reschedule skipped")
		}
	}
}

// findAlternatives ranks bookable substitutes for a slot: up to 5 on the same
// day ordered by start time, otherwise up to 10 within the following 7 days
// ordered by date then start time.
func (s *Service) findAlternatives(ctx context.Context, target *slot.TimeSlot) ([]*slot.TimeSlot, error) {
	now := s.clock.Now()
	dayStart := target.Date
	dayEnd := dayStart.AddDate(0, 0, 1)

	sameDay, err := s.slots.ListAvailable(ctx, target.DoctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	sameDay = filterAlternatives(sameDay, target.ID, now)
	if len(sameDay) > 0 {
		if len(sameDay) > sameDayAlternativeLimit {
			sameDay = sameDay[:sameDayAlternativeLimit]
		}
		return sameDay, nil
	}

	week, err := s.slots.ListAvailable(ctx, target.DoctorID, dayEnd, dayEnd.AddDate(0, 0, alternativeSearchDays))
	if err != nil {
		return nil, err
	}
	week = filterAlternatives(week, target.ID, now)
	if len(week) > weekAlternativeLimit {
		week = week[:weekAlternativeLimit]
	}
	return week, nil
}

func filterAlternatives(slots []*slot.TimeSlot, excludeID uuid.UUID, now time.Time) []*slot.TimeSlot {
	var result []*slot.TimeSlot
	for _, s := range slots {
		if s.ID == excludeID || s.StartTime.Before(now) {
			continue
		}
		result = append(result, s)
	}
	return result
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
