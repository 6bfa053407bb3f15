// Package replay is a position source reading recorded positions,
// eg. from a file or stdin.
package replay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/stream"
	"github.com/rotblauer/catspeed/types"
	"github.com/rotblauer/catspeed/types/position"
)

var ErrAlreadyReplaying = errors.New("replay already started")

type Source struct {
	r         io.Reader
	pace      float64
	batchSize int
	filter    func(position.Position) bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

type Option func(s *Source)

// WithPace replays in (scaled) real time, using the gaps between sample timestamps.
// A factor of 1 is real time, 10 is ten times as fast. Zero, the default,
// replays as fast as the reader and the subscriber allow.
func WithPace(factor float64) Option {
	return func(s *Source) {
		s.pace = factor
	}
}

// WithBatchSize sets how many positions are delivered at a time when unpaced.
func WithBatchSize(n int) Option {
	return func(s *Source) {
		s.batchSize = n
	}
}

// WithFilter drops positions for which keep returns false.
func WithFilter(keep func(position.Position) bool) Option {
	return func(s *Source) {
		s.filter = keep
	}
}

func New(r io.Reader, opts ...Option) *Source {
	s := &Source{
		r:         r,
		batchSize: 100,
		filter:    func(position.Position) bool { return true },
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestCurrentPosition always returns ErrNoCurrentPosition;
// a recording has no position before its first one.
func (s *Source) RequestCurrentPosition(ctx context.Context) (position.Position, error) {
	return position.Position{}, speedtracker.ErrNoCurrentPosition
}

// RequestUpdates starts replaying to sink. A reader can only be replayed once.
func (s *Source) RequestUpdates(ctx context.Context, req params.UpdateRequest, sink speedtracker.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyReplaying
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx, sink)
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

// Done is closed when the replay has finished or been cancelled.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err returns the error which ended the replay, if any.
// Only meaningful after Done.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Source) run(ctx context.Context, sink speedtracker.Sink) {
	defer close(s.done)

	positions := make(chan position.Position)
	readErr := make(chan error, 1)
	go func() {
		defer close(positions)
		readErr <- types.ReadPositions(s.r, func(p position.Position) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case positions <- p:
				return nil
			}
		})
	}()

	filtered := stream.Filter(ctx, s.filter, positions)
	n := 0
	if s.pace > 0 {
		var prev *position.Position
		for p := range filtered {
			if prev != nil {
				gap := time.Duration(float64(p.TimestampMillis-prev.TimestampMillis)/s.pace) * time.Millisecond
				if !sleep(ctx, gap) {
					break
				}
			}
			sink.OnPositions([]position.Position{p})
			n++
			prev = &p
		}
	} else {
		for batch := range stream.Batch(ctx, s.batchSize, filtered) {
			sink.OnPositions(batch)
			n += len(batch)
		}
	}

	err := <-readErr
	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		err = nil
	}
	slog.Debug("Replay done", "delivered", n, "error", err)
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		sink.OnError(&speedtracker.UpstreamError{Err: err})
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
