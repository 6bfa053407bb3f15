// Package speedtracker turns a cat's stream of position fixes into a speed,
// and notices when the cat has stopped.
package speedtracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rotblauer/catspeed/common"
	"github.com/rotblauer/catspeed/geo/geomath"
	"github.com/rotblauer/catspeed/metrics"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types/position"
	"github.com/rotblauer/catspeed/types/status"
)

const millisPerHour = 3_600_000

// Tracker is the speed engine for one cat.
// Samples are expected one at a time, in order; the mutex only keeps
// readers on other goroutines (status handlers, subscribers) honest.
type Tracker struct {
	config    *params.SpeedTrackerConfig
	source    Source
	logger    *slog.Logger
	onStopped func(TripSummary)

	mu              sync.Mutex
	history         []position.Position
	stopTimerMillis int64
	stopTimerSet    bool
	active          bool

	latest *status.Latest
}

type Option func(t *Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithOnStopped registers a callback for the summary of each trip as it ends.
// It runs on the goroutine delivering the stopping sample.
func WithOnStopped(fn func(TripSummary)) Option {
	return func(t *Tracker) {
		t.onStopped = fn
	}
}

// New returns an inactive tracker with status Loading. Call Start to arm it.
// The source may be nil for trackers fed by hand with OnPositionUpdate.
func New(config *params.SpeedTrackerConfig, src Source, opts ...Option) *Tracker {
	if config == nil {
		config = params.DefaultSpeedTrackerConfig()
	}
	t := &Tracker{
		config: config,
		source: src,
		logger: slog.Default(),
		latest: status.NewLatest(status.Loading{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start arms the tracker for a new trip.
// The stop timer is cleared, and starts again from the first sample the trip accepts,
// so it always runs on the samples' own clock.
// It seeds history with the source's current position, if it has one,
// and then subscribes to updates. A source failure is published as an Error status,
// returned, and leaves the tracker inactive.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.config.ResetHistoryOnStart {
		t.history = nil
	}
	t.stopTimerMillis = 0
	t.stopTimerSet = false
	t.active = true
	t.mu.Unlock()

	t.latest.Set(status.Loading{})

	if t.source == nil {
		return nil
	}

	seed, err := t.source.RequestCurrentPosition(ctx)
	switch {
	case err == nil:
		t.seed(seed)
	case errors.Is(err, ErrNoCurrentPosition):
		t.logger.Debug("No current position to seed trip with")
	default:
		t.fail(err)
		return err
	}

	if err := t.source.RequestUpdates(ctx, t.config.UpdateRequest, t); err != nil {
		t.fail(err)
		return err
	}
	return nil
}

// Resume re-subscribes an already armed tracker to its source,
// eg. after Restore. History and the stop timer are kept.
func (t *Tracker) Resume(ctx context.Context) error {
	if !t.Active() {
		return ErrInactive
	}
	if t.source == nil {
		return nil
	}
	if err := t.source.RequestUpdates(ctx, t.config.UpdateRequest, t); err != nil {
		t.fail(err)
		return err
	}
	return nil
}

// seed appends the source's last known fix without publishing anything.
// The fix may be old, so it does not start the stop timer.
func (t *Tracker) seed(p position.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := p.Validate(); err != nil {
		t.logger.Warn("Ignoring invalid seed position", "error", err)
		return
	}
	if n := len(t.history); n > 0 && p.TimestampMillis <= t.history[n-1].TimestampMillis {
		t.logger.Debug("Ignoring stale seed position", "timestamp", p.TimestampMillis)
		return
	}
	t.history = append(t.history, p.WithSpeed(0))
}

// Stop cancels updates and disarms the tracker without ending the trip;
// no Stopped status is published.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
	t.cancelUpdates()
}

// fail publishes err as an Error status and disarms the tracker.
func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()

	metrics.SourceErrors.Inc(1)
	t.logger.Warn("Position source failed", "kind", status.ErrorKind(err), "error", err)
	t.latest.Set(status.Error{Cause: err})
}

func (t *Tracker) cancelUpdates() {
	if t.source == nil {
		return
	}
	if err := t.source.CancelUpdates(); err != nil {
		t.logger.Warn("Failed to cancel position updates", "error", err)
	}
}

// OnPositions implements Sink. Rejected samples are logged and dropped.
func (t *Tracker) OnPositions(positions []position.Position) {
	for _, p := range positions {
		if _, err := t.OnPositionUpdate(p.Lat, p.Lng, p.TimestampMillis); err != nil {
			t.logger.Debug("Dropped position", "timestamp", p.TimestampMillis, "error", err)
		}
	}
}

// OnError implements Sink. The error is published as-is and the tracker disarms
// until the next Start.
func (t *Tracker) OnError(err error) {
	if err == nil {
		return
	}
	if !t.Active() {
		t.logger.Debug("Ignoring source error on inactive tracker", "error", err)
		return
	}
	t.fail(err)
	t.cancelUpdates()
}

// update is what one sample does to the tracker.
type update struct {
	sample  position.Position
	publish status.Status
	trip    *TripSummary
}

// OnPositionUpdate processes a single fix and returns the sample as recorded,
// speed included.
//
// The first two samples of a trip get speed 0. After that, a sample with the same
// coordinates as the one before it is stationary: it keeps the previous speed and may
// end the trip, if the cat hasn't moved for the stop threshold. Any other sample gets
// the speed it took to get there from the previous one.
func (t *Tracker) OnPositionUpdate(lat, lng float64, timestampMillis int64) (position.Position, error) {
	candidate := position.New(lat, lng, timestampMillis)

	t.mu.Lock()
	u, err := t.update(candidate)
	t.mu.Unlock()

	if err != nil {
		metrics.SamplesRejected.Inc(1)
		return position.Position{}, err
	}
	metrics.SamplesAccepted.Inc(1)
	metrics.SampleMeter.Mark(1)

	if u.publish != nil {
		t.latest.Set(u.publish)
	}
	if u.trip != nil {
		metrics.TripsStopped.Inc(1)
		t.cancelUpdates()
		t.logger.Info("Trip stopped", "samples", u.trip.Samples,
			"average", u.trip.AverageKmh, "distance", u.trip.DistanceKm)
		if t.onStopped != nil {
			t.onStopped(*u.trip)
		}
	}
	return u.sample, nil
}

// update must be called with the lock held.
func (t *Tracker) update(candidate position.Position) (update, error) {
	if !t.active {
		return update{}, ErrInactive
	}
	if err := candidate.Validate(); err != nil {
		return update{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}

	n := len(t.history)
	if n > 0 {
		last := t.history[n-1]
		if dt := candidate.TimestampMillis - last.TimestampMillis; dt <= 0 {
			return update{}, fmt.Errorf("%w: %d ms after previous sample", ErrInvalidSampleOrdering, dt)
		}
	}

	if !t.stopTimerSet {
		t.stopTimerMillis = candidate.TimestampMillis
		t.stopTimerSet = true
	}

	if n < 2 {
		t.history = append(t.history, candidate)
		return update{sample: candidate, publish: status.Ready{Speed: 0}}, nil
	}

	last := t.history[n-1]

	if candidate.SameCoordinates(last) {
		metrics.SamplesStationary.Inc(1)
		u := update{sample: candidate.WithSpeed(last.Speed)}

		if time.Duration(candidate.TimestampMillis-t.stopTimerMillis)*time.Millisecond >= t.config.StopThreshold {
			// The average covers the trip up to, not including, the stopping sample.
			u.publish = status.Stopped{Average: averageSpeed(t.history, t.config.Precision)}
			t.active = false
			t.history = append(t.history, u.sample)
			trip := Summarize(t.history, t.config.Precision)
			u.trip = &trip
			return u, nil
		}

		if t.config.ReemitStationary {
			u.publish = status.Ready{Speed: last.Speed}
		}
		t.history = append(t.history, u.sample)
		return u, nil
	}

	t.stopTimerMillis = candidate.TimestampMillis

	dt := candidate.TimestampMillis - last.TimestampMillis
	dist := geomath.GreatCircleDistanceKm(last.Lat, candidate.Lat, last.Lng, candidate.Lng)
	speed := common.DecimalToFixed(dist/float64(dt)*millisPerHour, t.config.Precision)
	if speed > common.SpeedOfCommercialFlightKmh {
		t.logger.Warn("Implausible speed", "kmh", speed, "km", dist, "ms", dt)
	}

	sample := candidate.WithSpeed(speed)
	t.history = append(t.history, sample)
	return update{sample: sample, publish: status.Ready{Speed: speed}}, nil
}

// Status returns the most recently published status.
func (t *Tracker) Status() status.Status {
	return t.latest.Get()
}

// Subscribe returns a channel of status changes, starting with the current status.
// Slow readers see only the latest value. Call cancel when done.
func (t *Tracker) Subscribe() (<-chan status.Status, func()) {
	return t.latest.Subscribe()
}

// History returns a copy of the trip's samples.
func (t *Tracker) History() []position.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]position.Position, len(t.history))
	copy(out, t.history)
	return out
}

// StopTimerMillis is the timestamp of the last movement, or of the trip's first
// sample if the cat hasn't moved since. It is unset, ok false, until a sample arrives.
func (t *Tracker) StopTimerMillis() (ms int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopTimerMillis, t.stopTimerSet
}

func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Summary summarizes the trip so far.
func (t *Tracker) Summary() TripSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summarize(t.history, t.config.Precision)
}

// Close disarms the tracker and closes its subscriptions.
func (t *Tracker) Close() {
	t.Stop()
	t.latest.Close()
}
