package speedtracker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rotblauer/catspeed/common"
	"github.com/rotblauer/catspeed/geo/geomath"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types/position"
	"github.com/rotblauer/catspeed/types/status"
)

// stepDeg is the latitude step covering 0.2778 km.
var stepDeg = 0.2778 / geomath.EarthRadiusKm * 180 / math.Pi

type fakeSource struct {
	mu         sync.Mutex
	current    *position.Position
	currentErr error
	updatesErr error
	sink       Sink
	requests   int
	cancels    int
}

func (s *fakeSource) RequestUpdates(ctx context.Context, req params.UpdateRequest, sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if s.updatesErr != nil {
		return s.updatesErr
	}
	s.sink = sink
	return nil
}

func (s *fakeSource) CancelUpdates() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.sink = nil
	return nil
}

func (s *fakeSource) RequestCurrentPosition(ctx context.Context) (position.Position, error) {
	if s.currentErr != nil {
		return position.Position{}, s.currentErr
	}
	if s.current == nil {
		return position.Position{}, ErrNoCurrentPosition
	}
	return *s.current, nil
}

func newTestTracker(t *testing.T, config *params.SpeedTrackerConfig, src Source, opts ...Option) *Tracker {
	t.Helper()
	tr := New(config, src, opts...)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return tr
}

func stopTimer(t *testing.T, tr *Tracker) int64 {
	t.Helper()
	ms, ok := tr.StopTimerMillis()
	if !ok {
		t.Fatal("stop timer unset")
	}
	return ms
}

func mustUpdate(t *testing.T, tr *Tracker, lat, lng float64, ts int64) position.Position {
	t.Helper()
	p, err := tr.OnPositionUpdate(lat, lng, ts)
	if err != nil {
		t.Fatalf("update at %d: %v", ts, err)
	}
	return p
}

func wantReady(t *testing.T, tr *Tracker, speed float64) {
	t.Helper()
	r, ok := tr.Status().(status.Ready)
	if !ok {
		t.Fatalf("want Ready(%.2f), got %v", speed, tr.Status())
	}
	if r.Speed != speed {
		t.Errorf("want Ready(%.2f), got %v", speed, r)
	}
}

func TestTracker_NewIsLoading(t *testing.T) {
	tr := New(nil, nil)
	if _, ok := tr.Status().(status.Loading); !ok {
		t.Errorf("want Loading, got %v", tr.Status())
	}
	if tr.Active() {
		t.Error("tracker active before Start")
	}
	if ms, ok := tr.StopTimerMillis(); ok {
		t.Errorf("stop timer set before any sample: %d", ms)
	}
	if _, err := tr.OnPositionUpdate(0, 0, 1); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive, got %v", err)
	}
	if len(tr.History()) != 0 {
		t.Error("history changed while inactive")
	}
}

func TestTracker_FirstSamplesAreReadyZero(t *testing.T) {
	tr := newTestTracker(t, nil, nil)

	p := mustUpdate(t, tr, 0, 0, 1000)
	if p.Speed != 0 {
		t.Errorf("first sample speed: want 0, got %v", p.Speed)
	}
	wantReady(t, tr, 0)

	// Even a moving second sample has no speed yet.
	p = mustUpdate(t, tr, stepDeg, 0, 2000)
	if p.Speed != 0 {
		t.Errorf("second sample speed: want 0, got %v", p.Speed)
	}
	wantReady(t, tr, 0)

	if n := len(tr.History()); n != 2 {
		t.Errorf("history: want 2, got %d", n)
	}
}

func TestTracker_Speed(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)

	p := mustUpdate(t, tr, 2*stepDeg, 0, 3000)
	if p.Speed != 1000.08 {
		t.Errorf("want 1000.08 km/h, got %v", p.Speed)
	}
	wantReady(t, tr, 1000.08)
	if got := stopTimer(t, tr); got != 3000 {
		t.Errorf("stop timer: want 3000, got %d", got)
	}

	// Half the distance in the same time.
	p = mustUpdate(t, tr, 2.5*stepDeg, 0, 4000)
	if p.Speed != 500.04 {
		t.Errorf("want 500.04 km/h, got %v", p.Speed)
	}
	wantReady(t, tr, 500.04)
}

func TestTracker_RejectsOutOfOrderSamples(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)
	mustUpdate(t, tr, 2*stepDeg, 0, 3000)

	before := tr.History()
	timer := stopTimer(t, tr)
	st := tr.Status()

	for _, ts := range []int64{3000, 2999, 0, -5} {
		_, err := tr.OnPositionUpdate(3*stepDeg, 0, ts)
		if !errors.Is(err, ErrInvalidSampleOrdering) {
			t.Fatalf("ts=%d: want ErrInvalidSampleOrdering, got %v", ts, err)
		}
		if got := len(tr.History()); got != len(before) {
			t.Errorf("ts=%d: history length changed: %d -> %d", ts, len(before), got)
		}
		if got := stopTimer(t, tr); got != timer {
			t.Errorf("ts=%d: stop timer changed: %d -> %d", ts, timer, got)
		}
		if got := tr.Status(); got != st {
			t.Errorf("ts=%d: status changed: %v -> %v", ts, st, got)
		}
	}
	if !tr.Active() {
		t.Error("rejected sample deactivated tracker")
	}

	// It recovers with the next good sample.
	mustUpdate(t, tr, 3*stepDeg, 0, 4000)
	wantReady(t, tr, 1000.08)
}

func TestTracker_RejectsInvalidCoordinates(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	for _, c := range [][2]float64{{91, 0}, {-90.1, 0}, {0, 180.5}, {0, -181}} {
		if _, err := tr.OnPositionUpdate(c[0], c[1], 2000); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%v: want ErrInvalidCoordinates, got %v", c, err)
		}
	}
	if n := len(tr.History()); n != 1 {
		t.Errorf("history: want 1, got %d", n)
	}
}

func TestTracker_StationaryInheritsSpeed(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)
	mustUpdate(t, tr, 2*stepDeg, 0, 3000)

	subCh, cancel := tr.Subscribe()
	defer cancel()
	<-subCh // current

	p := mustUpdate(t, tr, 2*stepDeg, 0, 10_000)
	if p.Speed != 1000.08 {
		t.Errorf("stationary sample: want inherited 1000.08, got %v", p.Speed)
	}
	if got := stopTimer(t, tr); got != 3000 {
		t.Errorf("stationary sample moved stop timer to %d", got)
	}
	select {
	case s := <-subCh:
		t.Errorf("stationary sample published %v", s)
	default:
	}
	if n := len(tr.History()); n != 4 {
		t.Errorf("history: want 4, got %d", n)
	}
}

func TestTracker_ReemitStationary(t *testing.T) {
	config := params.DefaultSpeedTrackerConfig()
	config.ReemitStationary = true
	tr := newTestTracker(t, config, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)
	mustUpdate(t, tr, 2*stepDeg, 0, 3000)

	subCh, cancel := tr.Subscribe()
	defer cancel()
	<-subCh

	mustUpdate(t, tr, 2*stepDeg, 0, 4000)
	select {
	case s := <-subCh:
		if r, ok := s.(status.Ready); !ok || r.Speed != 1000.08 {
			t.Errorf("want Ready(1000.08), got %v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no status re-emitted")
	}
}

func TestTracker_Stops(t *testing.T) {
	src := &fakeSource{}
	var trips []TripSummary
	tr := newTestTracker(t, nil, src, WithOnStopped(func(s TripSummary) {
		trips = append(trips, s)
	}))

	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)
	mustUpdate(t, tr, 2*stepDeg, 0, 3000) // last movement

	mustUpdate(t, tr, 2*stepDeg, 0, 10_000)
	mustUpdate(t, tr, 2*stepDeg, 0, 32_999)
	if _, ok := tr.Status().(status.Ready); !ok {
		t.Fatalf("stopped early: %v", tr.Status())
	}

	mustUpdate(t, tr, 2*stepDeg, 0, 33_000)
	stopped, ok := tr.Status().(status.Stopped)
	if !ok {
		t.Fatalf("want Stopped, got %v", tr.Status())
	}
	avg, ok := stopped.AverageOK()
	if !ok {
		t.Fatal("stopped without average")
	}
	// mean(0, 0, 1000.08, 1000.08, 1000.08) over the samples before the stopping one.
	if want := 600.05; avg != want {
		t.Errorf("average: want %v, got %v", want, avg)
	}
	if tr.Active() {
		t.Error("tracker still active after stop")
	}
	if n := len(tr.History()); n != 6 {
		t.Errorf("history: want 6, got %d", n)
	}
	if src.cancels != 1 {
		t.Errorf("want updates cancelled once, got %d", src.cancels)
	}

	// Nothing more until re-armed.
	if _, err := tr.OnPositionUpdate(2*stepDeg, 0, 40_000); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive, got %v", err)
	}
	if _, err := tr.OnPositionUpdate(3*stepDeg, 0, 41_000); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive, got %v", err)
	}
	if _, ok := tr.Status().(status.Stopped); !ok {
		t.Errorf("status changed after stop: %v", tr.Status())
	}

	if len(trips) != 1 {
		t.Fatalf("want exactly one trip, got %d", len(trips))
	}
	trip := trips[0]
	if trip.Samples != 6 || trip.StartMillis != 1000 || trip.EndMillis != 33_000 {
		t.Errorf("unexpected trip: %+v", trip)
	}
	if trip.MaxKmh != 1000.08 {
		t.Errorf("trip max: want 1000.08, got %v", trip.MaxKmh)
	}
	if math.Abs(trip.DistanceKm-0.556) > 0.001 {
		t.Errorf("trip distance: want 0.556, got %v", trip.DistanceKm)
	}
}

func TestTracker_StopTimerStartsAtFirstSample(t *testing.T) {
	// A cat that never moves stops the threshold after the trip's first fix,
	// whatever epoch the fixes are stamped in.
	tr := newTestTracker(t, nil, nil)
	statuses, cancel := tr.Subscribe()
	defer cancel()
	<-statuses // Loading

	mustUpdate(t, tr, 1, 1, 0)
	if got := stopTimer(t, tr); got != 0 {
		t.Errorf("stop timer: want 0, got %d", got)
	}
	mustUpdate(t, tr, 1, 1, 5000)
	mustUpdate(t, tr, 1, 1, 29_999)
	if _, ok := tr.Status().(status.Ready); !ok {
		t.Fatalf("want Ready, got %v", tr.Status())
	}
	mustUpdate(t, tr, 1, 1, 30_000)
	stopped, ok := tr.Status().(status.Stopped)
	if !ok {
		t.Fatalf("want Stopped, got %v", tr.Status())
	}
	if avg, _ := stopped.AverageOK(); avg != 0 {
		t.Errorf("average: want 0, got %v", avg)
	}
	if _, err := tr.OnPositionUpdate(1, 1, 100_000); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive, got %v", err)
	}

	stops := 0
drain:
	for {
		select {
		case s := <-statuses:
			if s.Kind() == status.KindStopped {
				stops++
			}
		default:
			break drain
		}
	}
	if stops != 1 {
		t.Errorf("want one Stopped, got %d", stops)
	}
}

func TestTracker_StopTimerIgnoresHostClock(t *testing.T) {
	// Fixes stamped a minute ahead of the host, sitting still for 10 s.
	ahead := time.Now().Add(time.Minute).UnixMilli()
	tr := newTestTracker(t, nil, nil)
	for i := int64(0); i <= 10; i++ {
		mustUpdate(t, tr, 1, 1, ahead+i*1000)
	}
	if _, ok := tr.Status().(status.Ready); !ok {
		t.Fatalf("stopped after 10 s: %v", tr.Status())
	}

	// And a day behind: still the full threshold.
	behind := time.Now().Add(-24 * time.Hour).UnixMilli()
	tr = newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 1, 1, behind)
	mustUpdate(t, tr, 1, 1, behind+5000)
	mustUpdate(t, tr, 1, 1, behind+29_000)
	if _, ok := tr.Status().(status.Ready); !ok {
		t.Fatalf("stopped early: %v", tr.Status())
	}
	mustUpdate(t, tr, 1, 1, behind+30_000)
	if _, ok := tr.Status().(status.Stopped); !ok {
		t.Errorf("want Stopped, got %v", tr.Status())
	}
}

func TestTracker_Restart(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, 0, 0, 2000)
	mustUpdate(t, tr, 0, 0, 31_000)
	if _, ok := tr.Status().(status.Stopped); !ok {
		t.Fatalf("want Stopped, got %v", tr.Status())
	}

	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Status().(status.Loading); !ok {
		t.Errorf("want Loading after Start, got %v", tr.Status())
	}
	if n := len(tr.History()); n != 0 {
		t.Errorf("history not cleared: %d", n)
	}
	if ms, ok := tr.StopTimerMillis(); ok {
		t.Errorf("stop timer not cleared: %d", ms)
	}
	mustUpdate(t, tr, 0, 0, 51_000)
	wantReady(t, tr, 0)
	if got := stopTimer(t, tr); got != 51_000 {
		t.Errorf("stop timer: want 51000, got %d", got)
	}
}

func TestTracker_KeepHistoryOnStart(t *testing.T) {
	config := params.DefaultSpeedTrackerConfig()
	config.ResetHistoryOnStart = false
	tr := newTestTracker(t, config, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)
	tr.Stop()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(tr.History()); n != 2 {
		t.Errorf("history: want 2, got %d", n)
	}
	mustUpdate(t, tr, 2*stepDeg, 0, 3000)
	wantReady(t, tr, 1000.08)
}

func TestTracker_SeedsFromCurrentPosition(t *testing.T) {
	seed := position.New(0, 0, 500)
	src := &fakeSource{current: &seed}
	tr := newTestTracker(t, nil, src)

	if _, ok := tr.Status().(status.Loading); !ok {
		t.Errorf("seeding published %v", tr.Status())
	}
	h := tr.History()
	if len(h) != 1 || h[0] != seed {
		t.Fatalf("want history seeded with %v, got %v", seed, h)
	}
	if src.requests != 1 || src.sink != tr {
		t.Errorf("tracker not subscribed to source")
	}
	if ms, ok := tr.StopTimerMillis(); ok {
		t.Errorf("seed started the stop timer at %d", ms)
	}

	// The sink side feeds the same engine.
	src.sink.OnPositions([]position.Position{
		position.New(stepDeg, 0, 1500),
		position.New(2*stepDeg, 0, 2500),
	})
	wantReady(t, tr, 1000.08)
}

func TestTracker_StartFailures(t *testing.T) {
	resolution := &SettingsResolutionError{Resolution: "settings://location"}
	cases := []struct {
		name string
		src  *fakeSource
		kind string
	}{
		{"permission", &fakeSource{updatesErr: ErrPermissionDenied}, "permission_denied"},
		{"settings", &fakeSource{updatesErr: resolution}, "settings_resolution_required"},
		{"current position", &fakeSource{currentErr: errors.New("boom")}, "upstream"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			defer common.SlogResetLevel(slog.LevelError)()
			tr := New(nil, c.src)
			err := tr.Start(context.Background())
			if err == nil {
				t.Fatal("want error")
			}
			e, ok := tr.Status().(status.Error)
			if !ok {
				t.Fatalf("want Error, got %v", tr.Status())
			}
			if e.Cause != err {
				t.Errorf("cause not passed through: %v != %v", e.Cause, err)
			}
			if got := status.ErrorKind(e.Cause); got != c.kind {
				t.Errorf("kind: want %s, got %s", c.kind, got)
			}
			if tr.Active() {
				t.Error("tracker active after failed Start")
			}
		})
	}

	var sre *SettingsResolutionError
	if !errors.As(resolution, &sre) || sre.Resolution != "settings://location" {
		t.Error("settings resolution not recoverable with errors.As")
	}
}

func TestTracker_OnError(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	src := &fakeSource{}
	tr := newTestTracker(t, nil, src)
	mustUpdate(t, tr, 0, 0, 1000)

	cause := &UpstreamError{Err: errors.New("gps fell in the river")}
	tr.OnError(cause)

	e, ok := tr.Status().(status.Error)
	if !ok {
		t.Fatalf("want Error, got %v", tr.Status())
	}
	if e.Cause != error(cause) {
		t.Errorf("cause not passed through: %v", e.Cause)
	}
	if tr.Active() {
		t.Error("tracker active after error")
	}
	if src.cancels != 1 {
		t.Errorf("want updates cancelled, got %d cancels", src.cancels)
	}
	if _, err := tr.OnPositionUpdate(0, 0, 2000); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive, got %v", err)
	}

	// Recovered only by Start.
	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	mustUpdate(t, tr, 0, 0, 3000)
	wantReady(t, tr, 0)
}

func TestTracker_SubscribeSeesTransitions(t *testing.T) {
	tr := New(nil, nil)
	ch, cancel := tr.Subscribe()
	defer cancel()

	if s := <-ch; s.Kind() != status.KindLoading {
		t.Fatalf("want loading first, got %v", s)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-ch // Loading again

	mustUpdate(t, tr, 0, 0, time.Now().UnixMilli())
	if s := <-ch; s.Kind() != status.KindReady {
		t.Errorf("want ready, got %v", s)
	}
}

func TestTracker_SnapshotRestore(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)
	mustUpdate(t, tr, 2*stepDeg, 0, 3000)
	snap := tr.Snapshot()

	src := &fakeSource{}
	other := New(nil, src)
	other.Restore(snap)
	if !other.Active() {
		t.Fatal("restored tracker inactive")
	}
	if err := other.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.sink != other {
		t.Error("resume did not subscribe")
	}
	wantReady(t, other, 1000.08)
	if got := stopTimer(t, other); got != 3000 {
		t.Errorf("stop timer: want 3000, got %d", got)
	}

	mustUpdate(t, other, 3*stepDeg, 0, 4000)
	if len(tr.History()) != 3 {
		t.Error("restored tracker shares history with the original")
	}
	if len(other.History()) != 4 {
		t.Errorf("history: want 4, got %d", len(other.History()))
	}

	other.Stop()
	if err := other.Resume(context.Background()); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive resuming a stopped tracker, got %v", err)
	}
}

func TestTracker_RestoreStopped(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	mustUpdate(t, tr, stepDeg, 0, 2000)
	mustUpdate(t, tr, 2*stepDeg, 0, 3000)
	mustUpdate(t, tr, 2*stepDeg, 0, 33_000)
	before, ok := tr.Status().(status.Stopped)
	if !ok {
		t.Fatalf("want Stopped, got %v", tr.Status())
	}

	other := New(nil, nil)
	other.Restore(tr.Snapshot())
	after, ok := other.Status().(status.Stopped)
	if !ok {
		t.Fatalf("want restored Stopped, got %v", other.Status())
	}
	if *after.Average != *before.Average {
		t.Errorf("average: want %v, got %v", *before.Average, *after.Average)
	}
	if other.Active() {
		t.Error("restored stopped tracker is active")
	}
	if err := other.Resume(context.Background()); !errors.Is(err, ErrInactive) {
		t.Errorf("want ErrInactive resuming a stopped trip, got %v", err)
	}
}

func TestTracker_RestoreError(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelError)()
	tr := newTestTracker(t, nil, &fakeSource{})
	mustUpdate(t, tr, 0, 0, 1000)
	tr.OnError(ErrPermissionDenied)

	other := New(nil, nil)
	other.Restore(tr.Snapshot())
	e, ok := other.Status().(status.Error)
	if !ok {
		t.Fatalf("want restored Error, got %v", other.Status())
	}
	if e.Cause.Error() != ErrPermissionDenied.Error() {
		t.Errorf("cause: want %v, got %v", ErrPermissionDenied, e.Cause)
	}
}

func TestTracker_HistoryIsACopy(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	mustUpdate(t, tr, 0, 0, 1000)
	h := tr.History()
	h[0].Lat = 45
	if tr.History()[0].Lat != 0 {
		t.Error("History returned the tracker's own slice")
	}
}
