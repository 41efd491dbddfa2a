package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/availability"
	"github.com/clinicore/clinic-scheduling/internal/directory"
	"github.com/clinicore/clinic-scheduling/internal/slot"
)

// Handlers bundles the engine's entry points behind HTTP.
type Handlers struct {
	appts     *appointment.Service
	avail     availability.Store
	expander  *availability.Expander
	slots     slot.Store
	directory directory.Lookup
	log       zerolog.Logger
}

func NewHandlers(appts *appointment.Service, avail availability.Store, expander *availability.Expander,
	slots slot.Store, dir directory.Lookup, log zerolog.Logger) *Handlers {
	return &Handlers{
		appts:     appts,
		avail:     avail,
		expander:  expander,
		slots:     slots,
		directory: dir,
		log:       log.With().Str("component", "api").Logger(),
	}
}

func (h *Handlers) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}

	booking := appointment.BookingRequest{
		SlotID:    slotID,
		PatientID: patientID,
		Type:      req.Type,
		Priority:  req.Priority,
		Note:      req.Note,
		Recurring: req.Recurring,
	}
	if req.ReasonCategory != "" {
		booking.ReasonCategory = &req.ReasonCategory
	}
	if req.Recurring {
		if req.RecurrencePattern == "" {
			writeError(w, http.StatusBadRequest, "missing_recurrence_pattern", "recurring bookings need a recurrence_pattern")
			return
		}
		p := appointment.RecurrencePattern(req.RecurrencePattern)
		booking.Pattern = &p
		if req.RecurrenceEndDate != "" {
			end, err := time.Parse("2006-01-02", req.RecurrenceEndDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_recurrence_end_date", "recurrence_end_date must be YYYY-MM-DD")
				return
			}
			booking.RecurrenceEndDate = &end
		}
	}

	appt, err := h.appts.Book(r.Context(), booking)
	if err != nil {
		h.handleBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "appointment")
	if !ok {
		return
	}
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "patient")
	if !ok {
		return
	}
	appts, err := h.appts.ListByPatient(r.Context(), id, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) TransitionAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "appointment")
	if !ok {
		return
	}
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	status := appointment.Status(req.Status)
	if !appointment.ValidStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+req.Status)
		return
	}

	appt, err := h.appts.TransitionTo(r.Context(), id, status, parseActor(req.ActorID), req.Note)
	if err != nil {
		h.handleTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "appointment")
	if !ok {
		return
	}
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.appts.Cancel(r.Context(), id, parseActor(req.ActorID), req.Note, req.Propagate)
	if err != nil {
		h.handleTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "appointment")
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}

	appt, err := h.appts.Reschedule(r.Context(), id, slotID, parseActor(req.ActorID), req.Note, req.Propagate)
	if err != nil {
		var unavailable *appointment.SlotUnavailableError
		if errors.As(err, &unavailable) {
			writeJSON(w, http.StatusConflict, SlotUnavailableResponse{
				Error:        "slot_unavailable",
				Details:      unavailable.Error(),
				Alternatives: toSlotResponses(unavailable.Alternatives),
			})
			return
		}
		h.handleRescheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	var req CreateAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	a := &availability.DoctorAvailability{
		ID:                 uuid.New(),
		DoctorID:           doctorID,
		ScheduleType:       availability.ScheduleType(req.ScheduleType),
		Weekday:            time.Weekday(req.Weekday),
		SlotDuration:       req.SlotDuration,
		MaxPatientsPerSlot: req.MaxPatientsPerSlot,
		IsActive:           true,
		Department:         req.Department,
		Location:           req.Location,
		Room:               req.Room,
	}
	if req.EffectiveDate != "" {
		d, err := time.Parse("2006-01-02", req.EffectiveDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_effective_date", "effective_date must be YYYY-MM-DD")
			return
		}
		a.EffectiveDate = &d
	}
	if req.StartTime != "" || req.EndTime != "" {
		start, err1 := parseClock(req.StartTime)
		end, err2 := parseClock(req.EndTime)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "start_time and end_time must be HH:MM")
			return
		}
		a.StartMinute = start
		a.EndMinute = end
	}
	if req.StartDate != "" {
		d, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
		a.StartDate = &d
	}
	if req.EndDate != "" {
		d, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be YYYY-MM-DD")
			return
		}
		a.EndDate = &d
	}

	if err := h.avail.Create(r.Context(), a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": a.ID.String()})
}

func (h *Handlers) ExpandAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "availability")
	if !ok {
		return
	}
	var req ExpandAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	from, err1 := time.Parse("2006-01-02", req.From)
	to, err2 := time.Parse("2006-01-02", req.To)
	if err1 != nil || err2 != nil || to.Before(from) {
		writeError(w, http.StatusBadRequest, "invalid_date_range", "from and to must be YYYY-MM-DD with from <= to")
		return
	}

	a, err := h.avail.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, availability.ErrNotFound) {
			writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	created, err := h.expander.Expand(r.Context(), a, from, to)
	resp := ExpandAvailabilityResponse{Created: toSlotResponses(created)}
	if err != nil {
		var conflict *availability.ConflictError
		if errors.As(err, &conflict) {
			resp.Conflicts = toConflictResponses(conflict.Conflicts)
			// partial success: clean dates were expanded, conflicting ones were not
			writeJSON(w, http.StatusConflict, resp)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) ListDoctorSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "doctor")
	if !ok {
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date query param must be YYYY-MM-DD")
		return
	}

	slots, err := h.slots.ListByDoctorDate(r.Context(), id, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	resp := DoctorSlotsResponse{
		DoctorID: id,
		Date:     date.Format("2006-01-02"),
		Slots:    toSlotResponses(slots),
	}
	if info, err := h.directory.DoctorInfo(r.Context(), id); err == nil {
		resp.DoctorName = info.Name
		if info.Department != nil {
			resp.Department = *info.Department
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, slot.ErrUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *Handlers) handleTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrStatusConflict):
		writeError(w, http.StatusConflict, "status_conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *Handlers) handleRescheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, slot.ErrNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, appointment.ErrPastSlot):
		writeError(w, http.StatusUnprocessableEntity, "past_slot", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, param, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+entity+"_id", entity+" id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseActor(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// parseClock parses HH:MM into minutes from midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
