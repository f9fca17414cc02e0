package domain

import (
	"fmt"
	"time"
)

type AlarmState string

const (
	AlarmIdle    AlarmState = "idle"
	AlarmArmed   AlarmState = "armed"
	AlarmFiring  AlarmState = "firing"
	AlarmSnoozed AlarmState = "snoozed"
)

type TravelMode string

const (
	TravelDriving TravelMode = "driving"
	TravelWalking TravelMode = "walking"
	TravelCycling TravelMode = "cycling"
	TravelTransit TravelMode = "transit"
)

// AverageSpeed is the nominal speed in m/s used for ETA display only.
func (m TravelMode) AverageSpeed() float64 {
	switch m {
	case TravelWalking:
		return 1.4
	case TravelCycling:
		return 4.2
	case TravelTransit:
		return 8.3
	default:
		return 11.1
	}
}

func ParseTravelMode(s string) (TravelMode, error) {
	switch m := TravelMode(s); m {
	case TravelDriving, TravelWalking, TravelCycling, TravelTransit:
		return m, nil
	case "":
		return TravelDriving, nil
	default:
		return "", fmt.Errorf("%w: unknown travel mode %q", ErrInvalidArgument, s)
	}
}

type StartTripRequest struct {
	TripID       string        `json:"trip_id"`
	Destinations []Destination `json:"destinations"`
	RadiusMeters float64       `json:"radius_meters"`
	TravelMode   TravelMode    `json:"travel_mode"`
}

type TripSession struct {
	TripID     string     `json:"trip_id"`
	Geofences  []Geofence `json:"geofences"`
	TravelMode TravelMode `json:"travel_mode"`
	StartedAt  time.Time  `json:"started_at"`
}

func (s TripSession) Clone() TripSession {
	out := s
	out.Geofences = append([]Geofence(nil), s.Geofences...)
	return out
}

// SessionStatus is the read model handed to the UI layer.
type SessionStatus struct {
	State             AlarmState      `json:"state"`
	Session           *TripSession    `json:"session,omitempty"`
	NearestGeofenceID string          `json:"nearest_geofence_id,omitempty"`
	DistanceMeters    *float64        `json:"distance_meters,omitempty"`
	ETASeconds        *float64        `json:"eta_seconds,omitempty"`
	LastSample        *LocationSample `json:"last_sample,omitempty"`
	FiringGeofenceID  string          `json:"firing_geofence_id,omitempty"`
	SnoozeUntil       *time.Time      `json:"snooze_until,omitempty"`
	TrackingError     string          `json:"tracking_error,omitempty"`
	FeedbackError     string          `json:"feedback_error,omitempty"`

	// EndedTripID is set only on the reply to the complete or cancel
	// command that actually ended a trip.
	EndedTripID string `json:"ended_trip_id,omitempty"`
}
