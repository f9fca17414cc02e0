package service

import (
	"math"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/geo"
)

// Evaluate returns the armed geofences whose center lies within radius of the
// sample, in input order. Disarmed geofences and non-positive radii never
// trigger.
func Evaluate(sample domain.LocationSample, geofences []domain.Geofence) []domain.Geofence {
	var triggered []domain.Geofence
	for _, gf := range geofences {
		if !gf.Armed || gf.RadiusMeters <= 0 {
			continue
		}
		if geo.DistanceMeters(sample.Coordinate, gf.Center) <= gf.RadiusMeters {
			triggered = append(triggered, gf)
		}
	}
	return triggered
}

// Nearest picks the closest armed geofence, falling back to the closest one
// overall once every geofence has fired. ok is false for an empty set.
func Nearest(sample domain.LocationSample, geofences []domain.Geofence) (gf domain.Geofence, distance float64, ok bool) {
	bestArmed, bestAny := -1, -1
	armedDist, anyDist := math.Inf(1), math.Inf(1)
	for i, g := range geofences {
		d := geo.DistanceMeters(sample.Coordinate, g.Center)
		if d < anyDist {
			bestAny, anyDist = i, d
		}
		if g.Armed && d < armedDist {
			bestArmed, armedDist = i, d
		}
	}
	switch {
	case bestArmed >= 0:
		return geofences[bestArmed], armedDist, true
	case bestAny >= 0:
		return geofences[bestAny], anyDist, true
	default:
		return domain.Geofence{}, 0, false
	}
}

func distanceTo(sample domain.LocationSample, gf domain.Geofence) float64 {
	return geo.DistanceMeters(sample.Coordinate, gf.Center)
}
