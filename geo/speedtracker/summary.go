package speedtracker

import (
	"github.com/mmcloughlin/geohash"
	"github.com/montanaflynn/stats"
	"github.com/rotblauer/catspeed/common"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/geo/geomath"
	"github.com/rotblauer/catspeed/types/position"
)

// TripSummary describes a finished (or in-progress) trip.
// Speeds are km/h, rounded to the tracker's precision.
// ID and Cat are left for the caller to fill in.
type TripSummary struct {
	ID           string           `json:"id,omitempty"`
	Cat          conceptual.CatID `json:"cat,omitempty"`
	StartMillis  int64            `json:"start"`
	EndMillis    int64            `json:"end"`
	StartGeohash string           `json:"start_geohash"`
	EndGeohash   string           `json:"end_geohash"`
	Samples      int              `json:"samples"`
	AverageKmh   float64          `json:"average_kmh"`
	MedianKmh    float64          `json:"median_kmh"`
	MaxKmh       float64          `json:"max_kmh"`
	DistanceKm   float64          `json:"distance_km"`
}

// GeohashPrecision of 7 characters is a cell of roughly 150 m.
const GeohashPrecision = 7

// Summarize computes a TripSummary over a trip's history.
func Summarize(history []position.Position, precision int) TripSummary {
	if len(history) == 0 {
		return TripSummary{}
	}

	speeds := make([]float64, 0, len(history))
	distance := 0.0
	for i, p := range history {
		speeds = append(speeds, p.Speed)
		if i > 0 {
			prev := history[i-1]
			distance += geomath.GreatCircleDistanceKm(prev.Lat, p.Lat, prev.Lng, p.Lng)
		}
	}

	statsMustFloat := func(fn func() (float64, error)) float64 {
		out, _ := fn()
		return common.DecimalToFixed(out, precision)
	}
	data := stats.Float64Data(speeds)

	first, last := history[0], history[len(history)-1]
	return TripSummary{
		StartMillis:  first.TimestampMillis,
		EndMillis:    last.TimestampMillis,
		StartGeohash: geohash.EncodeWithPrecision(first.Lat, first.Lng, GeohashPrecision),
		EndGeohash:   geohash.EncodeWithPrecision(last.Lat, last.Lng, GeohashPrecision),
		Samples:      len(history),
		AverageKmh:   statsMustFloat(data.Mean),
		MedianKmh:    statsMustFloat(data.Median),
		MaxKmh:       statsMustFloat(data.Max),
		DistanceKm:   common.DecimalToFixed(distance, 3),
	}
}

// averageSpeed is the rounded mean of all recorded speeds,
// or nil if nothing has been recorded.
func averageSpeed(history []position.Position, precision int) *float64 {
	speeds := make(stats.Float64Data, 0, len(history))
	for _, p := range history {
		speeds = append(speeds, p.Speed)
	}
	mean, err := stats.Mean(speeds)
	if err != nil {
		return nil
	}
	avg := common.DecimalToFixed(mean, precision)
	return &avg
}
