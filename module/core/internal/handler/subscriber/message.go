package subscriber

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/tracking"
)

// Device status values reported instead of a fix.
const (
	statusOK               = ""
	statusSignalLost       = "signal_lost"
	statusPermissionDenied = "permission_denied"
	statusUnavailable      = "unavailable"
)

// LocationMessage is the JSON a device publishes for every fix. A message
// with a non-empty status carries no coordinates.
type LocationMessage struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Status    string  `json:"status,omitempty"`
}

func decodeUpdate(payload []byte) (string, tracking.Update, error) {
	var raw LocationMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", tracking.Update{}, fmt.Errorf("invalid location message: %w", err)
	}
	if err := validateLocationMessage(&raw); err != nil {
		return raw.DeviceID, tracking.Update{}, err
	}

	switch raw.Status {
	case statusSignalLost:
		return raw.DeviceID, tracking.Update{Err: domain.ErrSignalLost}, nil
	case statusPermissionDenied:
		return raw.DeviceID, tracking.Update{Err: domain.ErrPermissionDenied}, nil
	case statusUnavailable:
		return raw.DeviceID, tracking.Update{Err: domain.ErrTrackingUnavailable}, nil
	}

	return raw.DeviceID, tracking.Update{Sample: domain.LocationSample{
		Coordinate:     domain.Coordinate{Latitude: raw.Latitude, Longitude: raw.Longitude},
		AccuracyMeters: raw.Accuracy,
		Timestamp:      time.Unix(raw.Timestamp, 0),
	}}, nil
}

func validateLocationMessage(msg *LocationMessage) error {
	if msg.DeviceID == "" {
		return fmt.Errorf("device_id: required")
	}
	switch msg.Status {
	case statusOK:
	case statusSignalLost, statusPermissionDenied, statusUnavailable:
		return nil
	default:
		return fmt.Errorf("status: unknown value %q", msg.Status)
	}
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Accuracy < 0 {
		return fmt.Errorf("accuracy: must not be negative")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
