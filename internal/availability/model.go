package availability

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type ScheduleType string

const (
	TypeRegular   ScheduleType = "regular"
	TypeTemporary ScheduleType = "temporary"
	TypeDayOff    ScheduleType = "day_off"
)

var (
	ErrNotFound          = errors.New("availability not found")
	ErrInvalidWindow     = errors.New("availability window start must be before end")
	ErrInvalidDuration   = errors.New("slot duration must be positive")
	ErrInvalidCapacity   = errors.New("max patients per slot must be positive")
	ErrMissingEffective  = errors.New("temporary and day-off schedules need an effective date")
	ErrInvalidDateRange  = errors.New("availability start date must not be after end date")
	ErrUnknownType       = errors.New("unknown schedule type")
)

// DoctorAvailability is a declarative work-schedule definition that concrete
// slots are generated from. The booking flow never mutates it.
type DoctorAvailability struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	ScheduleType       ScheduleType
	Weekday            time.Weekday // regular schedules only
	EffectiveDate      *time.Time   // temporary and day-off schedules
	StartMinute        int          // minutes from midnight, half-open window
	EndMinute          int
	SlotDuration       int // minutes
	MaxPatientsPerSlot int
	StartDate          *time.Time // optional bounds for regular schedules
	EndDate            *time.Time
	IsActive           bool
	Department         string
	Location           string
	Room               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *DoctorAvailability) Validate() error {
	switch a.ScheduleType {
	case TypeDayOff:
		// day-off schedules carry no window
		if a.EffectiveDate == nil {
			return ErrMissingEffective
		}
		return nil
	case TypeTemporary:
		if a.EffectiveDate == nil {
			return ErrMissingEffective
		}
	case TypeRegular:
		if a.StartDate != nil && a.EndDate != nil && a.StartDate.After(*a.EndDate) {
			return ErrInvalidDateRange
		}
	default:
		return ErrUnknownType
	}

	if a.StartMinute >= a.EndMinute {
		return ErrInvalidWindow
	}
	if a.SlotDuration <= 0 {
		return ErrInvalidDuration
	}
	if a.MaxPatientsPerSlot <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// AppliesOn reports whether the definition covers the given calendar date.
func (a *DoctorAvailability) AppliesOn(date time.Time) bool {
	day := midnightUTC(date)
	switch a.ScheduleType {
	case TypeTemporary, TypeDayOff:
		return a.EffectiveDate != nil && midnightUTC(*a.EffectiveDate).Equal(day)
	case TypeRegular:
		if day.Weekday() != a.Weekday {
			return false
		}
		if a.StartDate != nil && day.Before(midnightUTC(*a.StartDate)) {
			return false
		}
		if a.EndDate != nil && day.After(midnightUTC(*a.EndDate)) {
			return false
		}
		return true
	}
	return false
}

// WindowOn maps the minute-of-day window onto a concrete date.
func (a *DoctorAvailability) WindowOn(date time.Time) (start, end time.Time) {
	day := midnightUTC(date)
	start = day.Add(time.Duration(a.StartMinute) * time.Minute)
	end = day.Add(time.Duration(a.EndMinute) * time.Minute)
	return start, end
}

func midnightUTC(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
