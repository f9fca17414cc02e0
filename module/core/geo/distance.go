// Package geo holds the great-circle math used for proximity checks.
package geo

import (
	"math"
	"time"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

const EarthRadiusMeters = 6371000

// DistanceMeters returns the haversine distance between a and b. Inputs are
// not range checked and NaN propagates.
func DistanceMeters(a, b domain.Coordinate) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// EstimateETA is a straight-line estimate for display. Non-positive speed
// yields zero.
func EstimateETA(distanceMeters, speedMetersPerSecond float64) time.Duration {
	if speedMetersPerSecond <= 0 || distanceMeters <= 0 {
		return 0
	}
	return time.Duration(distanceMeters / speedMetersPerSecond * float64(time.Second))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
