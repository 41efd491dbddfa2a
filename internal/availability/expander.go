package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/slot"
)

// AppointmentCanceller cancels the active appointments referencing a slot.
// The appointment service implements it; the indirection keeps this package
// from depending on the booking engine.
type AppointmentCanceller interface {
	CancelBySlot(ctx context.Context, slotID uuid.UUID, note string) (int, error)
}

// Conflict identifies an existing slot window that blocks expansion for one
// candidate bucket.
type Conflict struct {
	Date           time.Time
	Start          time.Time
	End            time.Time
	ExistingSlotID uuid.UUID
}

// ConflictError reports every date whose generation was aborted. Dates without
// conflicts in the same request were still expanded.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	c := e.Conflicts[0]
	return fmt.Sprintf("schedule conflict on %s: window %s-%s overlaps slot %s (%d conflicting date(s) total)",
		c.Date.Format("2006-01-02"),
		c.Start.Format("15:04"),
		c.End.Format("15:04"),
		c.ExistingSlotID,
		len(e.Conflicts))
}

// Expander materializes TimeSlots from availability definitions.
type Expander struct {
	slots     slot.Store
	canceller AppointmentCanceller
	log       zerolog.Logger
}

func NewExpander(slots slot.Store, canceller AppointmentCanceller, log zerolog.Logger) *Expander {
	return &Expander{
		slots:     slots,
		canceller: canceller,
		log:       log.With().Str("component", "availability_expander").Logger(),
	}
}

// Expand creates the concrete slots for every date in [from, to] that the
// definition covers. Whole slot-duration buckets only; a trailing partial
// bucket is discarded. Buckets that already exist for the same availability
// are skipped. If any bucket on a date overlaps a foreign active slot, no
// slot is created for that date and the conflict is reported; other dates in
// the range still succeed. Day-off definitions instead block the date's
// existing slots and cancel their active appointments.
func (e *Expander) Expand(ctx context.Context, a *DoctorAvailability, from, to time.Time) ([]*slot.TimeSlot, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if a.ScheduleType == TypeDayOff {
		return nil, e.applyDayOff(ctx, a, from, to)
	}

	var created []*slot.TimeSlot
	var conflicts []Conflict

	for day := midnightUTC(from); !day.After(midnightUTC(to)); day = day.AddDate(0, 0, 1) {
		if !a.AppliesOn(day) {
			continue
		}

		existing, err := e.slots.ListByDoctorDate(ctx, a.DoctorID, day)
		if err != nil {
			return created, fmt.Errorf("list slots for %s: %w", day.Format("2006-01-02"), err)
		}

		newSlots, conflict := e.bucketsFor(a, day, existing)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
			continue // no partial day on conflict
		}
		if len(newSlots) == 0 {
			continue
		}

		if err := e.slots.CreateBatch(ctx, newSlots); err != nil {
			return created, fmt.Errorf("create slots for %s: %w", day.Format("2006-01-02"), err)
		}
		created = append(created, newSlots...)
	}

	e.log.Info().
		Str("availability_id", a.ID.String()).
		Int("created", len(created)).
		Int("conflict_dates", len(conflicts)).
		Msg("availability expanded")

	if len(conflicts) > 0 {
		return created, &ConflictError{Conflicts: conflicts}
	}
	return created, nil
}

// bucketsFor partitions the day's window into buckets and screens each one
// against the existing slots. It returns either the net-new slots for the day
// or the first conflict found.
func (e *Expander) bucketsFor(a *DoctorAvailability, day time.Time, existing []*slot.TimeSlot) ([]*slot.TimeSlot, *Conflict) {
	winStart, winEnd := a.WindowOn(day)
	dur := time.Duration(a.SlotDuration) * time.Minute

	var newSlots []*slot.TimeSlot
	for bStart := winStart; !bStart.Add(dur).After(winEnd); bStart = bStart.Add(dur) {
		bEnd := bStart.Add(dur)

		if hasExactWindow(existing, a.ID, bStart, bEnd) {
			continue // idempotent re-expansion
		}
		if c := findOverlap(existing, a.ID, bStart, bEnd); c != nil {
			c.Date = day
			return nil, c
		}

		availID := a.ID
		newSlots = append(newSlots, &slot.TimeSlot{
			ID:              uuid.New(),
			DoctorID:        a.DoctorID,
			Date:            day,
			StartTime:       bStart,
			EndTime:         bEnd,
			Status:          slot.StatusAvailable,
			MaxPatients:     a.MaxPatientsPerSlot,
			CurrentPatients: 0,
			IsActive:        true,
			AvailabilityID:  &availID,
			SourceType:      slot.SourceAvailability,
			Department:      a.Department,
			Location:        a.Location,
			Room:            a.Room,
		})
	}
	return newSlots, nil
}

// applyDayOff blocks every active slot on the covered dates and cancels the
// active appointments referencing them.
func (e *Expander) applyDayOff(ctx context.Context, a *DoctorAvailability, from, to time.Time) error {
	for day := midnightUTC(from); !day.After(midnightUTC(to)); day = day.AddDate(0, 0, 1) {
		if !a.AppliesOn(day) {
			continue
		}

		slots, err := e.slots.ListByDoctorDate(ctx, a.DoctorID, day)
		if err != nil {
			return fmt.Errorf("list slots for day off %s: %w", day.Format("2006-01-02"), err)
		}

		for _, s := range slots {
			if !s.IsActive {
				continue
			}
			if _, err := e.slots.Block(ctx, s.ID); err != nil {
				e.log.Error().Err(err).Str("slot_id", s.ID.String()).Msg("block slot for day off")
				continue
			}
			cancelled, err := e.canceller.CancelBySlot(ctx, s.ID, "provider day off")
			if err != nil {
				e.log.Error().Err(err).Str("slot_id", s.ID.String()).Msg("cancel appointments for day off")
				continue
			}
			if cancelled > 0 {
				e.log.Info().
					Str("slot_id", s.ID.String()).
					Int("cancelled", cancelled).
					Msg("appointments cancelled for provider day off")
			}
		}
	}
	return nil
}

func hasExactWindow(existing []*slot.TimeSlot, availabilityID uuid.UUID, start, end time.Time) bool {
	for _, s := range existing {
		if s.AvailabilityID != nil && *s.AvailabilityID == availabilityID &&
			s.StartTime.Equal(start) && s.EndTime.Equal(end) {
			return true
		}
	}
	return false
}

// findOverlap applies the half-open interval test against active slots not
// generated by the expanding availability.
func findOverlap(existing []*slot.TimeSlot, excludeAvailabilityID uuid.UUID, start, end time.Time) *Conflict {
	for _, s := range existing {
		if !s.IsActive {
			continue
		}
		if s.AvailabilityID != nil && *s.AvailabilityID == excludeAvailabilityID {
			continue
		}
		if start.Before(s.EndTime) && end.After(s.StartTime) {
			return &Conflict{Start: s.StartTime, End: s.EndTime, ExistingSlotID: s.ID}
		}
	}
	return nil
}
