// Package position defines the timestamped fix a cat makes, and the speed derived for it.
package position

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Position is a single location fix.
// Speed is in km/h, and is zero until the tracker has derived one.
// Positions are values; derive a new one with WithSpeed instead of mutating.
type Position struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	TimestampMillis int64   `json:"timestamp"`
	Speed           float64 `json:"speed"`
}

func New(lat, lng float64, timestampMillis int64) Position {
	return Position{Lat: lat, Lng: lng, TimestampMillis: timestampMillis}
}

// FromTime is New for callers holding a time.Time.
func FromTime(lat, lng float64, t time.Time) Position {
	return New(lat, lng, t.UnixMilli())
}

// WithSpeed returns a copy of p carrying speed.
func (p Position) WithSpeed(speed float64) Position {
	p.Speed = speed
	return p
}

func (p Position) Time() time.Time {
	return time.UnixMilli(p.TimestampMillis)
}

// Point returns the orb point, which is [lng, lat].
func (p Position) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// SameCoordinates is exact float equality; GPS receivers that haven't moved
// commonly repeat the previous fix verbatim.
func (p Position) SameCoordinates(other Position) bool {
	return p.Lat == other.Lat && p.Lng == other.Lng
}

// Validate checks coordinate ranges.
func (p Position) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("invalid coordinate: lat=%.14f", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("invalid coordinate: lng=%.14f", p.Lng)
	}
	return nil
}

// Feature returns the position as a GeoJSON point feature.
func (p Position) Feature() *geojson.Feature {
	f := geojson.NewFeature(p.Point())
	f.Properties["UnixTimeMillis"] = p.TimestampMillis
	f.Properties["Time"] = p.Time().UTC().Format(time.RFC3339Nano)
	f.Properties["Speed"] = p.Speed
	return f
}

// FromFeature reads a position from a GeoJSON point feature.
// Time is read from UnixTimeMillis, UnixTime (seconds), or Time (RFC3339), in that order.
func FromFeature(f *geojson.Feature) (Position, error) {
	if f == nil || f.Geometry == nil {
		return Position{}, fmt.Errorf("nil geometry")
	}
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return Position{}, fmt.Errorf("not a point: %s", f.Geometry.GeoJSONType())
	}
	ms, err := featureMillis(f.Properties)
	if err != nil {
		return Position{}, err
	}
	p := New(pt.Lat(), pt.Lon(), ms)
	p.Speed = f.Properties.MustFloat64("Speed", 0)
	return p, nil
}

func featureMillis(props geojson.Properties) (int64, error) {
	if v, ok := props["UnixTimeMillis"]; ok {
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	}
	if v, ok := props["UnixTime"]; ok {
		switch n := v.(type) {
		case float64:
			return int64(n * 1000), nil
		case int64:
			return n * 1000, nil
		case int:
			return int64(n) * 1000, nil
		}
	}
	s, ok := props["Time"].(string)
	if !ok {
		return 0, fmt.Errorf("missing time property")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
