package influxdb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rotblauer/catspeed/events"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types/status"
)

// StatusPoint renders a status change as a point.
// Loading, and a Stopped without an average, have nothing to say and return nil.
func StatusPoint(cs events.CatStatus, at time.Time) *write.Point {
	p := influxdb2.NewPointWithMeasurement("catspeed").
		SetTime(at).
		AddTag("cat", cs.Cat.String()).
		AddTag("status", string(cs.Status.Kind()))

	switch s := cs.Status.(type) {
	case status.Loading:
		return nil
	case status.Ready:
		p.AddField("speed", s.Speed)
	case status.Stopped:
		avg, ok := s.AverageOK()
		if !ok {
			return nil
		}
		p.AddField("average", avg)
	case status.Error:
		p.AddTag("kind", status.ErrorKind(s.Cause))
		p.AddField("error", s.String())
	}
	return p
}

// TripPoint renders a finished trip as a point at its end time.
func TripPoint(trip speedtracker.TripSummary) *write.Point {
	return influxdb2.NewPointWithMeasurement("cattrip").
		SetTime(time.UnixMilli(trip.EndMillis)).
		AddTag("cat", trip.Cat.String()).
		AddTag("end_geohash", trip.EndGeohash).
		AddField("id", trip.ID).
		AddField("start_geohash", trip.StartGeohash).
		AddField("duration_s", float64(trip.EndMillis-trip.StartMillis)/1000).
		AddField("samples", trip.Samples).
		AddField("average_kmh", trip.AverageKmh).
		AddField("median_kmh", trip.MedianKmh).
		AddField("max_kmh", trip.MaxKmh).
		AddField("distance_km", trip.DistanceKm)
}

// ExportTrips posts trips to an InfluxDB Write API.
// The Write API will buffer and flush. The last error encountered is returned.
func ExportTrips(config *params.InfluxConfig, trips []speedtracker.TripSummary) error {
	exp := NewExporter(config)
	for _, trip := range trips {
		exp.writeAPI.WritePoint(TripPoint(trip))
	}
	return exp.Close()
}

// Exporter writes status changes and trips as they happen.
type Exporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	now      func() time.Time

	wait sync.WaitGroup
	mu   sync.Mutex
	err  error
}

func NewExporter(config *params.InfluxConfig) *Exporter {
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(config.URL, config.Token, opts)
	writeAPI := client.WriteAPI(config.Org, config.Bucket)

	e := &Exporter{client: client, writeAPI: writeAPI, now: time.Now}

	// Errors returns a channel for reading errors which occurs during async writes.
	// Must be called before performing any writes for errors to be collected.
	// The chan is unbuffered and must be drained or the writer will block.
	// https://github.com/influxdata/influxdb-client-go?tab=readme-ov-file#reading-async-errors
	errorsCh := writeAPI.Errors()
	e.wait.Add(1)
	go func() {
		defer e.wait.Done()
		for err := range errorsCh {
			if err == nil {
				continue
			}
			slog.Warn("InfluxDB write failed", "error", err)
			e.mu.Lock()
			e.err = err
			e.mu.Unlock()
		}
	}()
	return e
}

// Run exports from the feeds until the context is done.
func (e *Exporter) Run(ctx context.Context, feeds *events.Feeds) {
	statuses := make(chan events.CatStatus)
	statusSub := feeds.Status.Subscribe(statuses)
	defer statusSub.Unsubscribe()

	trips := make(chan speedtracker.TripSummary)
	tripSub := feeds.TripStopped.Subscribe(trips)
	defer tripSub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-statusSub.Err():
			if err != nil {
				slog.Error("Status subscription error", "error", err)
			}
			return
		case err := <-tripSub.Err():
			if err != nil {
				slog.Error("Trip subscription error", "error", err)
			}
			return
		case cs := <-statuses:
			if p := StatusPoint(cs, e.now()); p != nil {
				e.writeAPI.WritePoint(p)
			}
		case trip := <-trips:
			e.writeAPI.WritePoint(TripPoint(trip))
		}
	}
}

// Close flushes pending writes, closes the client, and returns the last write error.
func (e *Exporter) Close() error {
	e.writeAPI.Flush()
	e.client.Close()
	e.wait.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
