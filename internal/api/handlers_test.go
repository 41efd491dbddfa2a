package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/availability"
	"github.com/clinicore/clinic-scheduling/internal/clock"
	"github.com/clinicore/clinic-scheduling/internal/directory"
	"github.com/clinicore/clinic-scheduling/internal/lock"
	"github.com/clinicore/clinic-scheduling/internal/notify"
	"github.com/clinicore/clinic-scheduling/internal/slot"
)

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	router http.Handler
	slots  *slot.MemoryStore
	avail  *availability.MemoryStore
	svc    *appointment.Service
}

func newTestEnv() *testEnv {
	log := zerolog.Nop()
	slots := slot.NewMemoryStore(log)
	repo := appointment.NewMemoryRepository(slots)
	avail := availability.NewMemoryStore()

	svc := appointment.NewService(
		repo,
		slots,
		lock.NewKeyedMutex(),
		notify.LogSink{Log: log},
		notify.LogBillingSink{Log: log},
		clock.Fixed{T: testNow},
		appointment.Config{AutoConfirm: true},
		log,
	)
	expander := availability.NewExpander(slots, svc, log)

	router := NewRouter(RouterConfig{
		Appointments:   svc,
		Availabilities: avail,
		Expander:       expander,
		Slots:          slots,
		Directory:      directory.StaticLookup{},
		Log:            log,
		Env:            "test",
		Version:        "test",
	})
	return &testEnv{router: router, slots: slots, avail: avail, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) makeSlot(t *testing.T, doctorID uuid.UUID, start time.Time, capacity int) *slot.TimeSlot {
	t.Helper()
	s := &slot.TimeSlot{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        slot.DateOf(start),
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		Status:      slot.StatusAvailable,
		MaxPatients: capacity,
		IsActive:    true,
		SourceType:  slot.SourceAvailability,
	}
	if err := e.slots.Create(context.Background(), s); err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return s
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBookAndGetAppointment(t *testing.T) {
	env := newTestEnv()
	s := env.makeSlot(t, uuid.New(), testNow.AddDate(0, 0, 2), 1)
	patientID := uuid.New()

	rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID:    s.ID.String(),
		PatientID: patientID.String(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[AppointmentResponse](t, rec)
	if created.Status != "confirmed" || created.SlotID != s.ID {
		t.Fatalf("created: %+v", created)
	}

	rec = env.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	got := decodeBody[AppointmentResponse](t, rec)
	if got.ID != created.ID || got.PatientID != patientID {
		t.Fatalf("get: %+v", got)
	}
}

func TestBookConflictOnFullSlot(t *testing.T) {
	env := newTestEnv()
	s := env.makeSlot(t, uuid.New(), testNow.AddDate(0, 0, 2), 1)

	first := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID: s.ID.String(), PatientID: uuid.New().String(),
	})
	if first.Code != http.StatusCreated {
		t.Fatalf("first booking status %d", first.Code)
	}

	second := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID: s.ID.String(), PatientID: uuid.New().String(),
	})
	if second.Code != http.StatusConflict {
		t.Fatalf("second booking status %d, want 409", second.Code)
	}
	errResp := decodeBody[ErrorResponse](t, second)
	if errResp.Error != "slot_full" {
		t.Fatalf("error code %q", errResp.Error)
	}
}

func TestBookValidation(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID: "not-a-uuid", PatientID: uuid.New().String(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad slot id status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID: uuid.New().String(), PatientID: uuid.New().String(),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown slot status %d", rec.Code)
	}
}

func TestTransitionEndpoint(t *testing.T) {
	env := newTestEnv()
	s := env.makeSlot(t, uuid.New(), testNow.AddDate(0, 0, 2), 1)

	rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID: s.ID.String(), PatientID: uuid.New().String(),
	})
	created := decodeBody[AppointmentResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/status",
		TransitionRequest{Status: "checked_in"})
	if rec.Code != http.StatusOK {
		t.Fatalf("check-in status %d: %s", rec.Code, rec.Body.String())
	}

	// checked_in -> completed skips in_progress and must be rejected
	rec = env.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/status",
		TransitionRequest{Status: "completed"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("invalid transition status %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/status",
		TransitionRequest{Status: "expired"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status %d, want 400", rec.Code)
	}
}

func TestCancelEndpointReleasesSlot(t *testing.T) {
	env := newTestEnv()
	s := env.makeSlot(t, uuid.New(), testNow.AddDate(0, 0, 2), 1)

	rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID: s.ID.String(), PatientID: uuid.New().String(),
	})
	created := decodeBody[AppointmentResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/cancel",
		CancelRequest{Note: "patient request"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status %d: %s", rec.Code, rec.Body.String())
	}

	after, err := env.slots.GetByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if after.CurrentPatients != 0 {
		t.Fatalf("slot not released: %d", after.CurrentPatients)
	}
}

func TestRescheduleEndpointReturnsAlternatives(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()
	day := testNow.AddDate(0, 0, 2)

	booked := env.makeSlot(t, doctorID, day.Add(1*time.Hour), 1)
	rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		SlotID: booked.ID.String(), PatientID: uuid.New().String(),
	})
	created := decodeBody[AppointmentResponse](t, rec)

	target := env.makeSlot(t, doctorID, day.Add(3*time.Hour), 1)
	if _, err := env.slots.Block(context.Background(), target.ID); err != nil {
		t.Fatalf("block: %v", err)
	}
	alt := env.makeSlot(t, doctorID, day.Add(2*time.Hour), 1)

	rec = env.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/reschedule",
		RescheduleRequest{SlotID: target.ID.String()})
	if rec.Code != http.StatusConflict {
		t.Fatalf("reschedule status %d, want 409", rec.Code)
	}
	resp := decodeBody[SlotUnavailableResponse](t, rec)
	if resp.Error != "slot_unavailable" {
		t.Fatalf("error code %q", resp.Error)
	}
	if len(resp.Alternatives) != 1 || resp.Alternatives[0].ID != alt.ID {
		t.Fatalf("alternatives: %+v", resp.Alternatives)
	}
}

func TestAvailabilityCreateAndExpand(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()

	rec := env.do(t, http.MethodPost, "/availabilities", CreateAvailabilityRequest{
		DoctorID:           doctorID.String(),
		ScheduleType:       "regular",
		Weekday:            int(time.Monday),
		StartTime:          "09:00",
		EndTime:            "10:00",
		SlotDuration:       30,
		MaxPatientsPerSlot: 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create availability status %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]string](t, rec)
	availID := created["id"]
	if availID == "" {
		t.Fatal("no availability id returned")
	}

	// 2024-06-03 is a Monday
	rec = env.do(t, http.MethodPost, "/availabilities/"+availID+"/expand",
		ExpandAvailabilityRequest{From: "2024-06-03", To: "2024-06-03"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expand status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[ExpandAvailabilityResponse](t, rec)
	if len(resp.Created) != 2 {
		t.Fatalf("expanded %d slots, want 2", len(resp.Created))
	}

	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?date=2024-06-03", doctorID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list doctor slots status %d", rec.Code)
	}
	listing := decodeBody[DoctorSlotsResponse](t, rec)
	if len(listing.Slots) != 2 {
		t.Fatalf("listed %d slots, want 2", len(listing.Slots))
	}
}

func TestExpandConflictReported(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()
	monday := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	// a manual slot already occupying part of the window
	env.makeSlot(t, doctorID, monday.Add(9*time.Hour+15*time.Minute), 1)

	rec := env.do(t, http.MethodPost, "/availabilities", CreateAvailabilityRequest{
		DoctorID:           doctorID.String(),
		ScheduleType:       "regular",
		Weekday:            int(time.Monday),
		StartTime:          "09:00",
		EndTime:            "10:00",
		SlotDuration:       30,
		MaxPatientsPerSlot: 1,
	})
	created := decodeBody[map[string]string](t, rec)

	rec = env.do(t, http.MethodPost, "/availabilities/"+created["id"]+"/expand",
		ExpandAvailabilityRequest{From: "2024-06-03", To: "2024-06-03"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expand status %d, want 409", rec.Code)
	}
	resp := decodeBody[ExpandAvailabilityResponse](t, rec)
	if len(resp.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(resp.Conflicts))
	}
	if len(resp.Created) != 0 {
		t.Fatalf("conflicting date still produced %d slots", len(resp.Created))
	}
}

func TestListPatientAppointments(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()
	patientID := uuid.New()

	for i := 0; i < 3; i++ {
		s := env.makeSlot(t, doctorID, testNow.AddDate(0, 0, i+1), 1)
		rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
			SlotID: s.ID.String(), PatientID: patientID.String(),
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("booking %d status %d", i, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/patients/"+patientID.String()+"/appointments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	got := decodeBody[[]AppointmentResponse](t, rec)
	if len(got) != 3 {
		t.Fatalf("listed %d appointments, want 3", len(got))
	}
}
