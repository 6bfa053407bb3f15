package speedtracker

import (
	"encoding/json"

	"github.com/rotblauer/catspeed/types/position"
	"github.com/rotblauer/catspeed/types/status"
)

// Snapshot is the tracker's state, enough to pick a trip back up
// after a restart.
type Snapshot struct {
	History         []position.Position `json:"history"`
	StopTimerMillis int64               `json:"stop_timer"`
	StopTimerSet    bool                `json:"stop_timer_set"`
	Active          bool                `json:"active"`

	// Status is the published status, as encoded by status.Marshal.
	Status json.RawMessage `json:"status,omitempty"`
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	history := make([]position.Position, len(t.history))
	copy(history, t.history)
	snap := Snapshot{
		History:         history,
		StopTimerMillis: t.stopTimerMillis,
		StopTimerSet:    t.stopTimerSet,
		Active:          t.active,
	}
	if b, err := status.Marshal(t.latest.Get()); err == nil {
		snap.Status = b
	} else {
		t.logger.Warn("Failed to snapshot status", "error", err)
	}
	return snap
}

// Restore replaces the tracker's state with the snapshot's, and republishes
// the snapshot's status: a stopped trip stays Stopped.
// It does not subscribe to the source; use Resume for an active snapshot.
// Snapshots without a status come back Ready with the last recorded speed,
// or Loading if there is no history yet.
func (t *Tracker) Restore(snap Snapshot) {
	t.mu.Lock()
	t.history = make([]position.Position, len(snap.History))
	copy(t.history, snap.History)
	t.stopTimerMillis = snap.StopTimerMillis
	t.stopTimerSet = snap.StopTimerSet
	t.active = snap.Active

	var s status.Status = status.Loading{}
	if n := len(t.history); n > 0 {
		s = status.Ready{Speed: t.history[n-1].Speed}
	}
	if len(snap.Status) > 0 {
		if restored, err := status.Unmarshal(snap.Status); err == nil {
			s = restored
		} else {
			t.logger.Warn("Ignoring unreadable snapshot status", "error", err)
		}
	}
	t.mu.Unlock()

	t.latest.Set(s)
}
