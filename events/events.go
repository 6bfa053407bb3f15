package events

import (
	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/types/status"
)

// CatStatus is a cat's status as of some change.
type CatStatus struct {
	Cat    conceptual.CatID
	Status status.Status
}

// Feeds are what the trackers tell the rest of the daemon.
// Sending blocks until every subscriber has received, so subscribers
// must keep reading.
type Feeds struct {
	// Status is fed every status change of every tracked cat.
	// It is fed from each cat's subscription, so a burst of changes
	// may arrive as only the latest one.
	Status event.FeedOf[CatStatus]

	// TripStopped is fed the summary of every trip as it ends.
	TripStopped event.FeedOf[speedtracker.TripSummary]
}

func NewFeeds() *Feeds {
	return &Feeds{}
}
