package reputation

import "testing"

func TestDeltasCoverEveryEvent(t *testing.T) {
	events := []string{
		EventSignTimeout,
		EventSubmissionTimeout,
		EventReviewTimeout,
		EventWithdrawal,
		EventWorkApproved,
		EventDisputeWon,
		EventDisputeLost,
	}
	for _, ev := range events {
		if _, ok := Deltas[ev]; !ok {
			t.Fatalf("no delta registered for %q", ev)
		}
	}
	if len(Deltas) != len(events) {
		t.Fatalf("Deltas holds %d entries, want %d", len(Deltas), len(events))
	}
}

func TestTimeoutPenaltiesAreUniform(t *testing.T) {
	want := Delta{Trust: -5, Untrust: 10}
	for _, ev := range []string{EventSignTimeout, EventSubmissionTimeout, EventReviewTimeout, EventWithdrawal} {
		if Deltas[ev] != want {
			t.Fatalf("delta for %q = %+v, want %+v", ev, Deltas[ev], want)
		}
	}
}

func TestDisputeLossOutweighsWin(t *testing.T) {
	win := Deltas[EventDisputeWon]
	loss := Deltas[EventDisputeLost]
	if win.Trust <= 0 || win.Untrust != 0 {
		t.Fatalf("win delta = %+v", win)
	}
	if loss.Trust >= 0 || loss.Untrust <= win.Trust {
		t.Fatalf("loss delta = %+v, should cost more than a win earns", loss)
	}
}
