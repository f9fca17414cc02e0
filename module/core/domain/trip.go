package domain

import "time"

type TripStatus string

const (
	TripPlanned   TripStatus = "planned"
	TripActive    TripStatus = "active"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// TripRecord is a saved trip owned by the trip data layer.
type TripRecord struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	TravelMode   TravelMode    `json:"travel_mode"`
	RadiusMeters float64       `json:"radius_meters"`
	Status       TripStatus    `json:"status"`
	Destinations []Destination `json:"destinations"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (r *TripRecord) StartRequest() StartTripRequest {
	return StartTripRequest{
		TripID:       r.ID,
		Destinations: append([]Destination(nil), r.Destinations...),
		RadiusMeters: r.RadiusMeters,
		TravelMode:   r.TravelMode,
	}
}
