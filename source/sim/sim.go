// Package sim is a position source for a pretend cat:
// it heads off from an origin at a constant bearing and speed, then sits still.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/stream"
	"github.com/rotblauer/catspeed/types/position"
)

var ErrAlreadySimulating = errors.New("simulation already running")

// Track generates the simulated fixes, one every config.Step.
// The first fix is at the origin at StartMillis.
func Track(config *params.SimulatorConfig) []position.Position {
	start := config.StartMillis
	if start == 0 {
		start = time.Now().UnixMilli()
	}
	step := config.Step
	if step <= 0 {
		step = params.DefaultUpdateRequest.FastestInterval
	}
	stepMeters := config.SpeedKmh * 1000 * step.Hours()

	out := []position.Position{}
	pt := orb.Point{config.OriginLng, config.OriginLat}
	ts := start
	out = append(out, position.New(pt.Lat(), pt.Lon(), ts))

	for elapsed := step; elapsed <= config.MoveDuration; elapsed += step {
		pt = geo.PointAtBearingAndDistance(pt, config.Bearing, stepMeters)
		ts += step.Milliseconds()
		out = append(out, position.New(pt.Lat(), pt.Lon(), ts))
	}
	for elapsed := step; elapsed <= config.DwellDuration; elapsed += step {
		ts += step.Milliseconds()
		out = append(out, position.New(pt.Lat(), pt.Lon(), ts))
	}
	return out
}

type Source struct {
	config *params.SimulatorConfig
	pace   float64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a simulator. Pace scales time like replay's:
// 1 is real time, 0 is as fast as possible.
func New(config *params.SimulatorConfig, pace float64) *Source {
	if config == nil {
		config = params.DefaultSimulatorConfig()
	}
	return &Source{config: config, pace: pace}
}

// RequestCurrentPosition returns the origin, one step before the simulation starts.
func (s *Source) RequestCurrentPosition(ctx context.Context) (position.Position, error) {
	start := s.config.StartMillis
	if start == 0 {
		return position.Position{}, speedtracker.ErrNoCurrentPosition
	}
	return position.New(s.config.OriginLat, s.config.OriginLng, start-s.config.Step.Milliseconds()), nil
}

func (s *Source) RequestUpdates(ctx context.Context, req params.UpdateRequest, sink speedtracker.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadySimulating
	}
	s.running = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx, sink, s.done)
	return nil
}

func (s *Source) CancelUpdates() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Done is closed when the current simulation has finished or been cancelled.
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Source) run(ctx context.Context, sink speedtracker.Sink, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	var wait time.Duration
	if s.pace > 0 {
		wait = time.Duration(float64(s.config.Step) / s.pace)
	}
	for p := range stream.Slice(ctx, Track(s.config)) {
		sink.OnPositions([]position.Position{p})
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}
