package metrics

import "testing"

func TestSnapshot(t *testing.T) {
	before := Snapshot()
	SamplesAccepted.Inc(2)
	SamplesRejected.Inc(1)
	TripsStopped.Inc(1)
	after := Snapshot()

	if got := after.Accepted - before.Accepted; got != 2 {
		t.Errorf("accepted: want 2, got %d", got)
	}
	if got := after.Rejected - before.Rejected; got != 1 {
		t.Errorf("rejected: want 1, got %d", got)
	}
	if got := after.Trips - before.Trips; got != 1 {
		t.Errorf("trips: want 1, got %d", got)
	}
	if Registry.Get("samples.accepted") == nil {
		t.Error("counter not registered")
	}
}
