package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/slot"
)

// 2024-06-03 is a Monday.
var monday = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type fakeCanceller struct {
	mu    sync.Mutex
	slots []uuid.UUID
}

func (f *fakeCanceller) CancelBySlot(_ context.Context, slotID uuid.UUID, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots = append(f.slots, slotID)
	return 1, nil
}

func newTestExpander() (*Expander, *slot.MemoryStore, *fakeCanceller) {
	slots := slot.NewMemoryStore(zerolog.Nop())
	canceller := &fakeCanceller{}
	return NewExpander(slots, canceller, zerolog.Nop()), slots, canceller
}

func weeklyAvailability(doctorID uuid.UUID, weekday time.Weekday, startMin, endMin, duration int) *DoctorAvailability {
	return &DoctorAvailability{
		ID:                 uuid.New(),
		DoctorID:           doctorID,
		ScheduleType:       TypeRegular,
		Weekday:            weekday,
		StartMinute:        startMin,
		EndMinute:          endMin,
		SlotDuration:       duration,
		MaxPatientsPerSlot: 1,
		IsActive:           true,
	}
}

func TestExpandWeekly(t *testing.T) {
	ctx := context.Background()
	exp, _, _ := newTestExpander()

	// 09:00-10:00 in 30 minute buckets
	a := weeklyAvailability(uuid.New(), time.Monday, 9*60, 10*60, 30)

	created, err := exp.Expand(ctx, a, monday, monday)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("got %d slots, want 2", len(created))
	}

	wantStarts := []time.Time{
		monday.Add(9 * time.Hour),
		monday.Add(9*time.Hour + 30*time.Minute),
	}
	for i, s := range created {
		if !s.StartTime.Equal(wantStarts[i]) {
			t.Errorf("slot %d starts at %s, want %s", i, s.StartTime, wantStarts[i])
		}
		if !s.EndTime.Equal(wantStarts[i].Add(30 * time.Minute)) {
			t.Errorf("slot %d ends at %s", i, s.EndTime)
		}
		if s.AvailabilityID == nil || *s.AvailabilityID != a.ID {
			t.Errorf("slot %d not linked to its availability", i)
		}
		if s.SourceType != slot.SourceAvailability {
			t.Errorf("slot %d source %s", i, s.SourceType)
		}
	}
}

func TestExpandSkipsNonMatchingDays(t *testing.T) {
	ctx := context.Background()
	exp, _, _ := newTestExpander()

	a := weeklyAvailability(uuid.New(), time.Monday, 9*60, 10*60, 30)

	// two full weeks contain exactly two Mondays
	created, err := exp.Expand(ctx, a, monday, monday.AddDate(0, 0, 13))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("got %d slots over two weeks, want 4", len(created))
	}
}

func TestExpandDiscardsPartialBucket(t *testing.T) {
	ctx := context.Background()
	exp, _, _ := newTestExpander()

	// 09:00-10:15 holds two whole 30 minute buckets and a 15 minute remainder
	a := weeklyAvailability(uuid.New(), time.Monday, 9*60, 10*60+15, 30)

	created, err := exp.Expand(ctx, a, monday, monday)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("got %d slots, want 2 (partial bucket must be discarded)", len(created))
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	ctx := context.Background()
	exp, _, _ := newTestExpander()

	a := weeklyAvailability(uuid.New(), time.Monday, 9*60, 10*60, 30)

	first, err := exp.Expand(ctx, a, monday, monday)
	if err != nil {
		t.Fatalf("first expand: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first expand created %d slots", len(first))
	}

	second, err := exp.Expand(ctx, a, monday, monday)
	if err != nil {
		t.Fatalf("second expand: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second expand created %d slots, want 0", len(second))
	}
}

func TestExpandConflictAbortsOnlyThatDate(t *testing.T) {
	ctx := context.Background()
	exp, slots, _ := newTestExpander()

	doctorID := uuid.New()
	a := weeklyAvailability(doctorID, time.Monday, 9*60, 10*60, 30)

	// a foreign manual slot overlapping the first Monday's window
	foreign := &slot.TimeSlot{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        monday,
		StartTime:   monday.Add(9*time.Hour + 15*time.Minute),
		EndTime:     monday.Add(9*time.Hour + 45*time.Minute),
		Status:      slot.StatusAvailable,
		MaxPatients: 1,
		IsActive:    true,
		SourceType:  slot.SourceManual,
	}
	if err := slots.Create(ctx, foreign); err != nil {
		t.Fatalf("create foreign slot: %v", err)
	}

	created, err := exp.Expand(ctx, a, monday, monday.AddDate(0, 0, 7))

	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("got %v, want ConflictError", err)
	}
	if len(conflictErr.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflictErr.Conflicts))
	}
	c := conflictErr.Conflicts[0]
	if !c.Date.Equal(monday) || c.ExistingSlotID != foreign.ID {
		t.Fatalf("conflict %+v does not reference the foreign slot", c)
	}

	// no slot at all on the conflicting date, full set on the clean one
	if len(created) != 2 {
		t.Fatalf("got %d slots for the clean date, want 2", len(created))
	}
	for _, s := range created {
		if s.Date.Equal(monday) {
			t.Fatalf("slot created on conflicting date %s", s.Date)
		}
	}
}

func TestExpandDayOffBlocksAndCancels(t *testing.T) {
	ctx := context.Background()
	exp, slots, canceller := newTestExpander()

	doctorID := uuid.New()
	regular := weeklyAvailability(doctorID, time.Monday, 9*60, 10*60, 30)
	created, err := exp.Expand(ctx, regular, monday, monday)
	if err != nil {
		t.Fatalf("expand regular: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("setup created %d slots", len(created))
	}

	effective := monday
	dayOff := &DoctorAvailability{
		ID:            uuid.New(),
		DoctorID:      doctorID,
		ScheduleType:  TypeDayOff,
		EffectiveDate: &effective,
		IsActive:      true,
	}

	got, err := exp.Expand(ctx, dayOff, monday, monday)
	if err != nil {
		t.Fatalf("expand day off: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("day off created %d slots", len(got))
	}

	for _, s := range created {
		after, err := slots.GetByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if after.Status != slot.StatusBlocked || after.IsActive {
			t.Errorf("slot %s not blocked: status=%s active=%v", s.ID, after.Status, after.IsActive)
		}
	}
	if len(canceller.slots) != 2 {
		t.Fatalf("canceller invoked for %d slots, want 2", len(canceller.slots))
	}
}

func TestValidate(t *testing.T) {
	base := func() *DoctorAvailability {
		return weeklyAvailability(uuid.New(), time.Monday, 9*60, 10*60, 30)
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid regular schedule rejected: %v", err)
	}

	a := base()
	a.StartMinute, a.EndMinute = 10*60, 9*60
	if err := a.Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("inverted window: got %v", err)
	}

	a = base()
	a.SlotDuration = 0
	if err := a.Validate(); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration: got %v", err)
	}

	a = base()
	a.MaxPatientsPerSlot = 0
	if err := a.Validate(); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("zero capacity: got %v", err)
	}

	a = base()
	a.ScheduleType = TypeTemporary
	if err := a.Validate(); !errors.Is(err, ErrMissingEffective) {
		t.Errorf("temporary without effective date: got %v", err)
	}

	// day off carries no window, only the date matters
	effective := monday
	dayOff := &DoctorAvailability{
		ScheduleType:  TypeDayOff,
		EffectiveDate: &effective,
	}
	if err := dayOff.Validate(); err != nil {
		t.Errorf("day off with effective date rejected: %v", err)
	}
	dayOff.EffectiveDate = nil
	if err := dayOff.Validate(); !errors.Is(err, ErrMissingEffective) {
		t.Errorf("day off without effective date: got %v", err)
	}
}

func TestAppliesOn(t *testing.T) {
	a := weeklyAvailability(uuid.New(), time.Monday, 9*60, 10*60, 30)

	if !a.AppliesOn(monday) {
		t.Error("regular schedule must apply on its weekday")
	}
	if a.AppliesOn(monday.AddDate(0, 0, 1)) {
		t.Error("regular schedule must not apply on other weekdays")
	}

	bounded := weeklyAvailability(uuid.New(), time.Monday, 9*60, 10*60, 30)
	start := monday.AddDate(0, 0, 7)
	bounded.StartDate = &start
	if bounded.AppliesOn(monday) {
		t.Error("schedule must not apply before its start date")
	}
	if !bounded.AppliesOn(monday.AddDate(0, 0, 7)) {
		t.Error("schedule must apply on its start date")
	}

	effective := monday
	temp := &DoctorAvailability{
		ScheduleType:  TypeTemporary,
		EffectiveDate: &effective,
	}
	if !temp.AppliesOn(monday) || temp.AppliesOn(monday.AddDate(0, 0, 1)) {
		t.Error("temporary schedule must apply only on its effective date")
	}
}
