package api

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rotblauer/catspeed/catdb/cache"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/events"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/metrics"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/source/push"
	"github.com/rotblauer/catspeed/state"
	"github.com/rotblauer/catspeed/stream"
	"github.com/rotblauer/catspeed/types/position"
	"github.com/rotblauer/catspeed/types/status"
)

// Backend is what all the cats of one daemon share.
// State may be nil to go without snapshots.
type Backend struct {
	Tracker   *params.SpeedTrackerConfig
	Feeds     *events.Feeds
	LastKnown *cache.LastKnown
	State     *state.State
}

func NewBackend(config *params.SpeedTrackerConfig) *Backend {
	if config == nil {
		config = params.DefaultSpeedTrackerConfig()
	}
	return &Backend{
		Tracker:   config,
		Feeds:     events.NewFeeds(),
		LastKnown: cache.NewLastKnown(),
	}
}

// Cat is a tracked cat: its speed tracker, and the source
// its positions get pushed to.
type Cat struct {
	CatID   conceptual.CatID
	Tracker *speedtracker.Tracker
	Source  *push.Source

	backend *Backend
	dedupe  *cache.Dedupe
	logger  *slog.Logger

	cancelStatuses func()
	forwarding     sync.WaitGroup
}

// NewCat builds an unstarted cat and begins forwarding its statuses
// to the backend's feeds and last-known cache.
func NewCat(catID conceptual.CatID, backend *Backend) *Cat {
	c := &Cat{
		CatID:   catID,
		Source:  push.New(),
		backend: backend,
		dedupe:  cache.NewDedupe(params.DedupeCacheSize),
		logger:  slog.With("cat", catID.String()),
	}
	c.Tracker = speedtracker.New(backend.Tracker, c.Source,
		speedtracker.WithLogger(c.logger),
		speedtracker.WithOnStopped(c.onTripStopped))

	statuses, cancel := c.Tracker.Subscribe()
	c.cancelStatuses = cancel
	c.forwarding.Add(1)
	go func() {
		defer c.forwarding.Done()
		for s := range statuses {
			c.backend.LastKnown.Set(c.CatID, s)
			c.backend.Feeds.Status.Send(events.CatStatus{Cat: c.CatID, Status: s})
		}
	}()
	return c
}

// Start (re)arms the cat's tracker for a new trip.
func (c *Cat) Start(ctx context.Context) error {
	c.logger.Info("Starting tracker")
	return c.Tracker.Start(ctx)
}

// Populate sorts, validates and dedupes positions, and pushes what's left to the tracker.
// Reported speeds are dropped; the tracker computes its own.
// It returns the tracker's status afterward. If the tracker isn't running, eg. the trip
// has stopped, ErrInactive is returned alongside the status; the positions are
// remembered only as the seed for the next trip, and are not counted as seen,
// so they may be posted again once the cat is started.
func (c *Cat) Populate(ctx context.Context, positions []position.Position) (status.Status, error) {
	sorted := slices.Clone(positions)
	slices.SortStableFunc(sorted, func(a, b position.Position) int {
		return cmp.Compare(a.TimestampMillis, b.TimestampMillis)
	})

	invalid := 0
	valid := func(p position.Position) bool {
		if err := p.Validate(); err != nil {
			c.logger.Warn("Invalid position", "error", err)
			invalid++
			return false
		}
		return true
	}
	batch := map[position.Position]bool{}
	unseen := func(p position.Position) bool {
		if batch[p] {
			return false
		}
		batch[p] = true
		return c.dedupe.Unseen(p)
	}
	unreported := func(p position.Position) position.Position {
		return p.WithSpeed(0)
	}
	fresh := stream.Collect(ctx,
		stream.Filter(ctx, unseen,
			stream.Filter(ctx, valid,
				stream.Transform(ctx, unreported,
					stream.Slice(ctx, sorted)))))
	if err := ctx.Err(); err != nil {
		return c.Tracker.Status(), err
	}

	metrics.SamplesRejected.Inc(int64(invalid))
	if dupes := len(positions) - len(fresh) - invalid; dupes > 0 {
		metrics.SamplesDuplicate.Inc(int64(dupes))
		c.logger.Debug("Dropped duplicate positions", "count", dupes)
	}

	if err := c.Source.Push(fresh); errors.Is(err, push.ErrNotSubscribed) {
		return c.Tracker.Status(), speedtracker.ErrInactive
	} else if err != nil {
		return c.Tracker.Status(), err
	}
	c.dedupe.Mark(fresh...)
	return c.Tracker.Status(), nil
}

func (c *Cat) Status() status.Status {
	return c.Tracker.Status()
}

// Summary summarizes the cat's current trip.
func (c *Cat) Summary() speedtracker.TripSummary {
	s := c.Tracker.Summary()
	s.Cat = c.CatID
	return s
}

func (c *Cat) onTripStopped(trip speedtracker.TripSummary) {
	trip.ID = uuid.New().String()
	trip.Cat = c.CatID
	c.backend.Feeds.TripStopped.Send(trip)
}

// Close stops the tracker and waits for its statuses to be forwarded.
func (c *Cat) Close() {
	c.Tracker.Close()
	c.cancelStatuses()
	c.forwarding.Wait()
}
