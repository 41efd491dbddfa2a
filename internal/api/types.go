package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/availability"
	"github.com/clinicore/clinic-scheduling/internal/slot"
)

type BookAppointmentRequest struct {
	SlotID            string `json:"slot_id"`
	PatientID         string `json:"patient_id"`
	Type              string `json:"appointment_type,omitempty"`
	Priority          int    `json:"priority,omitempty"`
	ReasonCategory    string `json:"reason_category,omitempty"`
	Note              string `json:"note,omitempty"`
	Recurring         bool   `json:"recurring,omitempty"`
	RecurrencePattern string `json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate string `json:"recurrence_end_date,omitempty"` // YYYY-MM-DD
}

type TransitionRequest struct {
	Status  string `json:"status"`
	ActorID string `json:"actor_id,omitempty"`
	Note    string `json:"note,omitempty"`
}

type CancelRequest struct {
	ActorID   string `json:"actor_id,omitempty"`
	Note      string `json:"note,omitempty"`
	Propagate bool   `json:"propagate,omitempty"`
}

type RescheduleRequest struct {
	SlotID    string `json:"slot_id"`
	ActorID   string `json:"actor_id,omitempty"`
	Note      string `json:"note,omitempty"`
	Propagate bool   `json:"propagate,omitempty"`
}

type CreateAvailabilityRequest struct {
	DoctorID           string `json:"doctor_id"`
	ScheduleType       string `json:"schedule_type"`
	Weekday            int    `json:"weekday,omitempty"`
	EffectiveDate      string `json:"effective_date,omitempty"` // YYYY-MM-DD
	StartTime          string `json:"start_time,omitempty"`     // HH:MM
	EndTime            string `json:"end_time,omitempty"`       // HH:MM
	SlotDuration       int    `json:"slot_duration,omitempty"`  // minutes
	MaxPatientsPerSlot int    `json:"max_patients_per_slot,omitempty"`
	StartDate          string `json:"start_date,omitempty"`
	EndDate            string `json:"end_date,omitempty"`
	Department         string `json:"department,omitempty"`
	Location           string `json:"location,omitempty"`
	Room               string `json:"room,omitempty"`
}

type ExpandAvailabilityRequest struct {
	From string `json:"from"` // YYYY-MM-DD
	To   string `json:"to"`   // YYYY-MM-DD
}

type AppointmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	SlotID     uuid.UUID  `json:"slot_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	Status     string     `json:"status"`
	Type       string     `json:"appointment_type,omitempty"`
	Priority   int        `json:"priority,omitempty"`
	IsFollowUp bool       `json:"is_follow_up,omitempty"`
	FollowUpTo *uuid.UUID `json:"follow_up_to,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type SlotResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	Date            string    `json:"date"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	MaxPatients     int       `json:"max_patients"`
	CurrentPatients int       `json:"current_patients"`
	Department      string    `json:"department,omitempty"`
	Location        string    `json:"location,omitempty"`
	Room            string    `json:"room,omitempty"`
}

type SlotUnavailableResponse struct {
	Error        string         `json:"error"`
	Details      string         `json:"details"`
	Alternatives []SlotResponse `json:"alternatives"`
}

type ConflictResponse struct {
	Date           string    `json:"date"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	ExistingSlotID uuid.UUID `json:"existing_slot_id"`
}

type ExpandAvailabilityResponse struct {
	Created   []SlotResponse     `json:"created"`
	Conflicts []ConflictResponse `json:"conflicts,omitempty"`
}

type DoctorSlotsResponse struct {
	DoctorID   uuid.UUID      `json:"doctor_id"`
	DoctorName string         `json:"doctor_name,omitempty"`
	Department string         `json:"department,omitempty"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		SlotID:     a.SlotID,
		PatientID:  a.PatientID,
		Status:     string(a.Status),
		Type:       a.Type,
		Priority:   a.Priority,
		IsFollowUp: a.IsFollowUp,
		FollowUpTo: a.FollowUpTo,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func toSlotResponse(s *slot.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		DoctorID:        s.DoctorID,
		Date:            s.Date.Format("2006-01-02"),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		Status:          string(s.Status),
		MaxPatients:     s.MaxPatients,
		CurrentPatients: s.CurrentPatients,
		Department:      s.Department,
		Location:        s.Location,
		Room:            s.Room,
	}
}

func toSlotResponses(slots []*slot.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func toConflictResponses(conflicts []availability.Conflict) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, ConflictResponse{
			Date:           c.Date.Format("2006-01-02"),
			Start:          c.Start,
			End:            c.End,
			ExistingSlotID: c.ExistingSlotID,
		})
	}
	return out
}
