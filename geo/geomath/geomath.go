// Package geomath holds the plain spherical math the speed tracker needs.
// Everything here is pure; coordinates are decimal degrees.
package geomath

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean radius of the earth.
const EarthRadiusKm = 6371.0

func DegreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

// GreatCircleDistanceKm returns the distance between two coordinates along the earth's surface.
// Note the argument order: both latitudes, then both longitudes.
/*
	Haversine formula.

	a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
	c = 2 ⋅ atan2( √a, √(1−a) )
	d = R ⋅ c

	The spherical law of cosines is simpler, but it loses precision badly
	when the two points are only a few meters apart, which is what
	consecutive GPS fixes usually are.
*/
func GreatCircleDistanceKm(lat1, lat2, lng1, lng2 float64) float64 {
	deltaLat := DegreesToRadians(lat2 - lat1)
	deltaLng := DegreesToRadians(lng2 - lng1)

	sinLat := math.Sin(deltaLat / 2)
	sinLng := math.Sin(deltaLng / 2)
	a := sinLat*sinLat +
		math.Cos(DegreesToRadians(lat1))*math.Cos(DegreesToRadians(lat2))*sinLng*sinLng

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// PointDistanceKm is GreatCircleDistanceKm for orb points, which are [lng, lat].
func PointDistanceKm(a, b orb.Point) float64 {
	return GreatCircleDistanceKm(a.Lat(), b.Lat(), a.Lon(), b.Lon())
}
