package http

import (
	"github.com/nandanugg/trip-alarm/module/core/domain"
)

type locationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

type geofenceResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
	Armed        bool    `json:"armed"`
}

type sessionResponse struct {
	State             domain.AlarmState  `json:"state"`
	TripID            string             `json:"trip_id,omitempty"`
	TravelMode        domain.TravelMode  `json:"travel_mode,omitempty"`
	StartedAt         int64              `json:"started_at,omitempty"`
	Geofences         []geofenceResponse `json:"geofences,omitempty"`
	NearestGeofenceID string             `json:"nearest_geofence_id,omitempty"`
	DistanceMeters    *float64           `json:"distance_meters,omitempty"`
	ETASeconds        *float64           `json:"eta_seconds,omitempty"`
	LastLocation      *locationResponse  `json:"last_location,omitempty"`
	FiringGeofenceID  string             `json:"firing_geofence_id,omitempty"`
	SnoozeUntil       int64              `json:"snooze_until,omitempty"`
	TrackingError     string             `json:"tracking_error,omitempty"`
	FeedbackError     string             `json:"feedback_error,omitempty"`
}

type destinationResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters,omitempty"`
}

type tripResponse struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	TravelMode   domain.TravelMode     `json:"travel_mode"`
	RadiusMeters float64               `json:"radius_meters"`
	Status       domain.TripStatus     `json:"status"`
	Destinations []destinationResponse `json:"destinations"`
	UpdatedAt    int64                 `json:"updated_at"`
}

type eventResponse struct {
	ID             string                `json:"id"`
	TripID         string                `json:"trip_id"`
	Event          domain.AlarmEventType `json:"event"`
	State          domain.AlarmState     `json:"state"`
	GeofenceID     string                `json:"geofence_id,omitempty"`
	DistanceMeters *float64              `json:"distance_meters,omitempty"`
	Location       *locationResponse     `json:"location,omitempty"`
	Error          string                `json:"error,omitempty"`
	Timestamp      int64                 `json:"timestamp"`
}

func toSessionResponse(st domain.SessionStatus) sessionResponse {
	resp := sessionResponse{
		State:             st.State,
		NearestGeofenceID: st.NearestGeofenceID,
		DistanceMeters:    st.DistanceMeters,
		ETASeconds:        st.ETASeconds,
		FiringGeofenceID:  st.FiringGeofenceID,
		TrackingError:     st.TrackingError,
		FeedbackError:     st.FeedbackError,
	}
	if s := st.Session; s != nil {
		resp.TripID = s.TripID
		resp.TravelMode = s.TravelMode
		resp.StartedAt = s.StartedAt.Unix()
		resp.Geofences = make([]geofenceResponse, len(s.Geofences))
		for i, gf := range s.Geofences {
			resp.Geofences[i] = geofenceResponse{
				ID:           gf.ID,
				Name:         gf.Name,
				Latitude:     gf.Center.Latitude,
				Longitude:    gf.Center.Longitude,
				RadiusMeters: gf.RadiusMeters,
				Armed:        gf.Armed,
			}
		}
	}
	if ls := st.LastSample; ls != nil {
		resp.LastLocation = &locationResponse{
			Latitude:  ls.Coordinate.Latitude,
			Longitude: ls.Coordinate.Longitude,
			Accuracy:  ls.AccuracyMeters,
			Timestamp: ls.Timestamp.Unix(),
		}
	}
	if st.SnoozeUntil != nil {
		resp.SnoozeUntil = st.SnoozeUntil.Unix()
	}
	return resp
}

func toTripResponse(t *domain.TripRecord) tripResponse {
	resp := tripResponse{
		ID:           t.ID,
		Name:         t.Name,
		TravelMode:   t.TravelMode,
		RadiusMeters: t.RadiusMeters,
		Status:       t.Status,
		Destinations: make([]destinationResponse, len(t.Destinations)),
		UpdatedAt:    t.UpdatedAt.Unix(),
	}
	for i, d := range t.Destinations {
		resp.Destinations[i] = destinationResponse{
			ID:           d.ID,
			Name:         d.Name,
			Latitude:     d.Coordinate.Latitude,
			Longitude:    d.Coordinate.Longitude,
			RadiusMeters: d.RadiusMeters,
		}
	}
	return resp
}

func toEventResponse(ev *domain.AlarmEvent) eventResponse {
	resp := eventResponse{
		ID:             ev.ID,
		TripID:         ev.TripID,
		Event:          ev.Type,
		State:          ev.State,
		GeofenceID:     ev.GeofenceID,
		DistanceMeters: ev.DistanceMeters,
		Error:          ev.Error,
		Timestamp:      ev.Timestamp.Unix(),
	}
	if ev.Location != nil {
		resp.Location = &locationResponse{Latitude: ev.Location.Latitude, Longitude: ev.Location.Longitude}
	}
	return resp
}
