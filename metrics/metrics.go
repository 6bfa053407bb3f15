// Package metrics counts what the trackers see.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rotblauer/catspeed/common"
)

// Registry holds every catspeed metric.
var Registry = newRegistry()

var (
	SamplesAccepted   = metrics.NewRegisteredCounter("samples.accepted", Registry)
	SamplesRejected   = metrics.NewRegisteredCounter("samples.rejected", Registry)
	SamplesStationary = metrics.NewRegisteredCounter("samples.stationary", Registry)
	SamplesDuplicate  = metrics.NewRegisteredCounter("samples.duplicate", Registry)
	TripsStopped      = metrics.NewRegisteredCounter("trips.stopped", Registry)
	SourceErrors      = metrics.NewRegisteredCounter("source.errors", Registry)
	SampleMeter       = metrics.NewRegisteredMeter("samples.meter", Registry)
)

func newRegistry() metrics.Registry {
	// Won't work without this global setting,
	// and it has to happen before any metric is constructed.
	metrics.Enabled = true
	return metrics.NewRegistry()
}

// Counts is a point-in-time copy of the counters.
type Counts struct {
	Accepted   int64   `json:"accepted"`
	Rejected   int64   `json:"rejected"`
	Stationary int64   `json:"stationary"`
	Duplicate  int64   `json:"duplicate"`
	Trips      int64   `json:"trips"`
	Errors     int64   `json:"errors"`
	Rate1      float64 `json:"rate1"`
}

func Snapshot() Counts {
	return Counts{
		Accepted:   SamplesAccepted.Snapshot().Count(),
		Rejected:   SamplesRejected.Snapshot().Count(),
		Stationary: SamplesStationary.Snapshot().Count(),
		Duplicate:  SamplesDuplicate.Snapshot().Count(),
		Trips:      TripsStopped.Snapshot().Count(),
		Errors:     SourceErrors.Snapshot().Count(),
		Rate1:      common.DecimalToFixed(SampleMeter.Snapshot().Rate1(), 2),
	}
}

// LogEvery logs the counters on an interval until the context is done.
func LogEvery(ctx context.Context, interval time.Duration) {
	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c := Snapshot()
			slog.Info("Samples",
				"accepted", humanize.Comma(c.Accepted),
				"rejected", humanize.Comma(c.Rejected),
				"stationary", humanize.Comma(c.Stationary),
				"trips", humanize.Comma(c.Trips),
				"sps", c.Rate1,
				"running", time.Since(started).Round(time.Second))
		}
	}
}
