package domain

import "time"

type AlarmEventType string

const (
	EventTripStarted         AlarmEventType = "trip_started"
	EventAlarmFiring         AlarmEventType = "alarm_firing"
	EventAlarmStopped        AlarmEventType = "alarm_stopped"
	EventAlarmSnoozed        AlarmEventType = "alarm_snoozed"
	EventAlarmRearmed        AlarmEventType = "alarm_rearmed"
	EventTripCompleted       AlarmEventType = "trip_completed"
	EventTripCancelled       AlarmEventType = "trip_cancelled"
	EventPositionUpdated     AlarmEventType = "position_updated"
	EventTrackingUnavailable AlarmEventType = "tracking_unavailable"
	EventFeedbackUnavailable AlarmEventType = "feedback_unavailable"
)

type AlarmEvent struct {
	ID             string         `json:"id"`
	TripID         string         `json:"trip_id"`
	Type           AlarmEventType `json:"event"`
	State          AlarmState     `json:"state"`
	GeofenceID     string         `json:"geofence_id,omitempty"`
	DistanceMeters *float64       `json:"distance_meters,omitempty"`
	Location       *Coordinate    `json:"location,omitempty"`
	Error          string         `json:"error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Lifecycle is false for the high-frequency position updates that only the
// live UI cares about.
func (e AlarmEvent) Lifecycle() bool {
	return e.Type != EventPositionUpdated
}

type FeedbackAction string

const (
	FeedbackPlay FeedbackAction = "play"
	FeedbackStop FeedbackAction = "stop"
)

// FeedbackCommand asks the device to start or stop sound and vibration.
type FeedbackCommand struct {
	Action     FeedbackAction `json:"action"`
	TripID     string         `json:"trip_id,omitempty"`
	GeofenceID string         `json:"geofence_id,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}
