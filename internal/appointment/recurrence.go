package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/slot"
)

var ErrInvalidPattern = errors.New("invalid recurrence pattern")

// NextDate returns the occurrence following d for the pattern. Monthly
// arithmetic clamps the day of month to the target month's last valid day
// instead of letting it roll over (Jan 31 -> Feb 29 in a leap year, not
// Mar 2).
func NextDate(d time.Time, p RecurrencePattern) (time.Time, error) {
	switch p {
	case PatternWeekly:
		return d.AddDate(0, 0, 7), nil
	case PatternBiweekly:
		return d.AddDate(0, 0, 14), nil
	case PatternMonthly:
		return addMonthClamped(d), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
}

func addMonthClamped(d time.Time) time.Time {
	y, m, day := d.Date()
	// day 0 of month+2 is the last day of month+1; time.Date normalizes
	// month overflow across year boundaries
	last := time.Date(y, m+2, 0, 0, 0, 0, 0, d.Location()).Day()
	if day > last {
		day = last
	}
	target := time.Date(y, m+1, 1, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
	return time.Date(target.Year(), target.Month(), day, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
}

// ExpandRecurrence generates the bounded series of follow-up appointments for
// a recurring parent. Each generated date reuses an available slot at the
// parent's time of day or synthesizes an ad-hoc one inheriting the parent
// slot's shape. A failed date is logged and skipped; the series continues.
func (s *Service) ExpandRecurrence(ctx context.Context, parentID uuid.UUID) ([]*Appointment, error) {
	parent, err := s.repo.GetByID(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("load parent appointment: %w", err)
	}
	if !parent.IsRecurring || parent.RecurrencePattern == nil {
		return nil, ErrNotRecurring
	}
	pattern := *parent.RecurrencePattern

	parentSlot, err := s.slots.GetByID(ctx, parent.SlotID)
	if err != nil {
		return nil, fmt.Errorf("load parent slot: %w", err)
	}

	end := parentSlot.StartTime.Add(s.cfg.RecurrenceHorizon)
	if parent.RecurrenceEndDate != nil {
		end = endOfDay(*parent.RecurrenceEndDate)
	}

	next, err := NextDate(parentSlot.StartTime, pattern)
	if err != nil {
		return nil, err
	}

	var children []*Appointment
	for !next.After(end) {
		child, err := s.bookOccurrence(ctx, parent, parentSlot, next)
		if err != nil {
			s.log.Warn().Err(err).
				Str("parent_id", parent.ID.String()).
				Time("occurrence", next).
				Msg("recurrence occurrence skipped")
		} else {
			children = append(children, child)
		}
		next, _ = NextDate(next, pattern)
	}

	if len(children) > 0 {
		s.logEvent(ctx, parent.ID, EventRecurrenceGenerated, map[string]any{
			"pattern":  string(pattern),
			"children": len(children),
		})
	}
	return children, nil
}

// bookOccurrence reserves (or synthesizes) the slot for one generated date
// and creates the child appointment.
func (s *Service) bookOccurrence(ctx context.Context, parent *Appointment, parentSlot *slot.TimeSlot, start time.Time) (*Appointment, error) {
	target, err := s.slots.FindAvailableAt(ctx, parentSlot.DoctorID, start)
	if err != nil {
		if !errors.Is(err, slot.ErrNotFound) {
			return nil, fmt.Errorf("find slot: %w", err)
		}
		target = &slot.TimeSlot{
			ID:          uuid.New(),
			DoctorID:    parentSlot.DoctorID,
			Date:        slot.DateOf(start),
			StartTime:   start,
			EndTime:     start.Add(parentSlot.Duration()),
			Status:      slot.StatusAvailable,
			MaxPatients: parentSlot.MaxPatients,
			IsActive:    true,
			SourceType:  slot.SourceManual,
			Department:  parentSlot.Department,
			Location:    parentSlot.Location,
			Room:        parentSlot.Room,
		}
		if err := s.slots.Create(ctx, target); err != nil {
			return nil, fmt.Errorf("create ad-hoc slot: %w", err)
		}
	}

	var child *Appointment
	err = s.locker.WithSlotLock(ctx, target.ID, func(lockCtx context.Context) error {
		if _, err := s.slots.Reserve(lockCtx, target.ID); err != nil {
			return err
		}

		parentRef := parent.ID
		appt := &Appointment{
			ID:              uuid.New(),
			PatientID:       parent.PatientID,
			SlotID:          target.ID,
			Status:          StatusPending,
			Type:            parent.Type,
			Priority:        parent.Priority,
			ReasonCategory:  parent.ReasonCategory,
			ParentID:        &parentRef,
			IsFollowUp:      true,
			FollowUpTo:      &parentRef,
			MedicalRecordID: parent.MedicalRecordID,
			Notes:           stampNote(s.clock.Now(), fmt.Sprintf("recurring series of appointment %s", parent.ID)),
		}

		a, err := s.repo.Create(lockCtx, appt)
		if err != nil {
			if _, relErr := s.slots.Release(lockCtx, target.ID); relErr != nil {
				s.log.Error().Err(relErr).Str("slot_id", target.ID.String()).Msg("release after failed series create")
			}
			return fmt.Errorf("create series appointment: %w", err)
		}
		child = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, child, "", StatusPending, uuid.Nil, "recurring series")
	return child, nil
}

func endOfDay(d time.Time) time.Time {
	y, m, day := d.UTC().Date()
	return time.Date(y, m, day, 23, 59, 59, 0, time.UTC)
}
