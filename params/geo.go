package params

import "time"

// UpdateRequest is the position-update cadence a tracker asks of its source.
// It is advisory; sources may deliver faster, slower, or in bursts.
type UpdateRequest struct {
	// Interval is the desired time between updates.
	Interval time.Duration

	// FastestInterval is the fastest rate the tracker wants to handle updates at.
	FastestInterval time.Duration
}

var DefaultUpdateRequest = UpdateRequest{
	Interval:        10 * time.Second,
	FastestInterval: 5 * time.Second,
}

type SpeedTrackerConfig struct {
	UpdateRequest

	// StopThreshold is how long the cat has to stand perfectly still
	// (identical coordinates) before the trip is considered over.
	StopThreshold time.Duration

	// Precision is the number of decimal places speeds and averages are rounded to.
	Precision int

	// ResetHistoryOnStart clears the trip history every time the tracker is (re)armed.
	// When false, history accumulates across trips and the average
	// at the next stop will include speeds from previous trips.
	ResetHistoryOnStart bool

	// ReemitStationary re-emits the held Ready speed on stationary samples.
	// By default stationary samples are silent until the stop threshold is reached.
	ReemitStationary bool
}

func DefaultSpeedTrackerConfig() *SpeedTrackerConfig {
	return &SpeedTrackerConfig{
		UpdateRequest:       DefaultUpdateRequest,
		StopThreshold:       30 * time.Second,
		Precision:           2,
		ResetHistoryOnStart: true,
		ReemitStationary:    false,
	}
}

// SimulatorConfig describes a simulated cat: it heads off from an origin
// at a fixed bearing and speed for a while, then sits still.
type SimulatorConfig struct {
	OriginLat float64
	OriginLng float64

	// Bearing in degrees, 0 is north.
	Bearing float64

	// SpeedKmh is the speed the cat moves at while moving.
	SpeedKmh float64

	MoveDuration  time.Duration
	DwellDuration time.Duration

	// Step is the time between simulated fixes.
	Step time.Duration

	// StartMillis is the timestamp of the first fix.
	// Zero means "now".
	StartMillis int64
}

func DefaultSimulatorConfig() *SimulatorConfig {
	return &SimulatorConfig{
		// Missoula, Montana.
		OriginLat:     46.8721,
		OriginLng:     -113.9940,
		Bearing:       90,
		SpeedKmh:      19.3,
		MoveDuration:  5 * time.Minute,
		DwellDuration: 45 * time.Second,
		Step:          DefaultUpdateRequest.FastestInterval,
	}
}
