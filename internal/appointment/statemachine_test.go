package appointment

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:     true,
		{StatusPending, StatusCancelled}:     true,
		{StatusPending, StatusRescheduled}:   true,
		{StatusConfirmed, StatusCheckedIn}:   true,
		{StatusConfirmed, StatusCancelled}:   true,
		{StatusConfirmed, StatusNoShow}:      true,
		{StatusConfirmed, StatusRescheduled}: true,
		{StatusCheckedIn, StatusInProgress}:  true,
		{StatusCheckedIn, StatusCancelled}:   true,
		{StatusCheckedIn, StatusNoShow}:      true,
		{StatusInProgress, StatusCompleted}:  true,
		{StatusInProgress, StatusCancelled}:  true,
		{StatusNoShow, StatusRescheduled}:    true,
		{StatusRescheduled, StatusPending}:   true,
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		for _, to := range AllStatuses() {
			if CanTransition(terminal, to) {
				t.Errorf("%s must be terminal, allows %s", terminal, to)
			}
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range AllStatuses() {
		if !ValidStatus(s) {
			t.Errorf("%s reported invalid", s)
		}
	}
	if ValidStatus("expired") {
		t.Error("unknown status reported valid")
	}
}
