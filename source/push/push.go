// Package push is a position source fed by someone else,
// eg. an HTTP handler receiving a cat's positions.
package push

import (
	"context"
	"errors"
	"sync"

	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types/position"
)

var ErrNotSubscribed = errors.New("no subscriber for pushed positions")

type Source struct {
	mu   sync.Mutex
	sink speedtracker.Sink

	// last is the most recent position pushed, which doubles
	// as the current position for the next subscriber.
	last *position.Position

	// deliver serializes deliveries, which the sink expects.
	deliver sync.Mutex
}

func New() *Source {
	return &Source{}
}

func (s *Source) RequestUpdates(ctx context.Context, req params.UpdateRequest, sink speedtracker.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
	return nil
}

func (s *Source) CancelUpdates() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = nil
	return nil
}

func (s *Source) RequestCurrentPosition(ctx context.Context) (position.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return position.Position{}, speedtracker.ErrNoCurrentPosition
	}
	return *s.last, nil
}

// Subscribed reports whether anyone is listening.
func (s *Source) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink != nil
}

// Push delivers positions to the subscriber.
// The latest one is kept either way.
func (s *Source) Push(positions []position.Position) error {
	if len(positions) == 0 {
		return nil
	}
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	last := positions[len(positions)-1]
	s.last = &last
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return ErrNotSubscribed
	}
	sink.OnPositions(positions)
	return nil
}

// Fail reports err to the subscriber.
func (s *Source) Fail(err error) error {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return ErrNotSubscribed
	}
	sink.OnError(err)
	return nil
}

// Deny reports that the cat has revoked location permission.
func (s *Source) Deny() error {
	return s.Fail(speedtracker.ErrPermissionDenied)
}
