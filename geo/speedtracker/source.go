package speedtracker

import (
	"context"

	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types/position"
)

// Source is where positions come from: a phone's location service,
// a file being replayed, an HTTP endpoint being pushed to.
type Source interface {
	// RequestUpdates starts delivering positions to sink until CancelUpdates.
	// Errors which prevent updates altogether (permissions, settings) are returned here;
	// failures after that are reported with sink.OnError.
	RequestUpdates(ctx context.Context, req params.UpdateRequest, sink Sink) error

	// CancelUpdates stops delivery. It may be called from inside a Sink callback,
	// so it must not wait for in-flight deliveries to finish.
	CancelUpdates() error

	// RequestCurrentPosition returns the last known fix, if any,
	// or ErrNoCurrentPosition.
	RequestCurrentPosition(ctx context.Context) (position.Position, error)
}

// Sink receives what a Source produces. Tracker is a Sink.
type Sink interface {
	OnPositions(positions []position.Position)
	OnError(err error)
}
