package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/geo"
)

// TripSessionStore holds the single active trip and its alarm state. The
// AlarmManager is its only writer; everything it hands out is a copy.
type TripSessionStore struct {
	mu      sync.RWMutex
	session *domain.TripSession
	state   domain.AlarmState

	firingID      string
	snoozeUntil   *time.Time
	lastSample    *domain.LocationSample
	nearestID     string
	distance      *float64
	trackingError string
	feedbackError string

	now func() time.Time
}

func NewTripSessionStore() *TripSessionStore {
	return &TripSessionStore{state: domain.AlarmIdle, now: time.Now}
}

// StartTrip creates the session with every geofence armed. Nothing changes
// when it fails.
func (s *TripSessionStore) StartTrip(req domain.StartTripRequest) (domain.TripSession, error) {
	geofences, err := buildGeofences(req)
	if err != nil {
		return domain.TripSession{}, err
	}
	mode, err := domain.ParseTravelMode(string(req.TravelMode))
	if err != nil {
		return domain.TripSession{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return domain.TripSession{}, domain.ErrTripActive
	}

	tripID := req.TripID
	if tripID == "" {
		tripID = uuid.NewString()
	}
	s.session = &domain.TripSession{
		TripID:     tripID,
		Geofences:  geofences,
		TravelMode: mode,
		StartedAt:  s.now(),
	}
	s.state = domain.AlarmArmed
	s.resetLocked()
	return s.session.Clone(), nil
}

func (s *TripSessionStore) CompleteTrip() (domain.TripSession, bool) {
	return s.clear()
}

func (s *TripSessionStore) CancelTrip() (domain.TripSession, bool) {
	return s.clear()
}

func (s *TripSessionStore) clear() (domain.TripSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return domain.TripSession{}, false
	}
	ended := s.session.Clone()
	s.session = nil
	s.state = domain.AlarmIdle
	s.resetLocked()
	return ended, true
}

func (s *TripSessionStore) resetLocked() {
	s.firingID = ""
	s.snoozeUntil = nil
	s.lastSample = nil
	s.nearestID = ""
	s.distance = nil
	s.trackingError = ""
	s.feedbackError = ""
}

func (s *TripSessionStore) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

func (s *TripSessionStore) TripID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.TripID
}

func (s *TripSessionStore) TravelMode() domain.TravelMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.TravelMode
}

func (s *TripSessionStore) State() domain.AlarmState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState is ignored without an active session, which stays Idle.
func (s *TripSessionStore) SetState(state domain.AlarmState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.state = state
	if state != domain.AlarmFiring {
		s.firingID = ""
	}
	if state != domain.AlarmSnoozed {
		s.snoozeUntil = nil
	}
}

func (s *TripSessionStore) SetFiring(geofenceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.state = domain.AlarmFiring
	s.firingID = geofenceID
	s.snoozeUntil = nil
}

func (s *TripSessionStore) SetSnoozed(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.state = domain.AlarmSnoozed
	s.firingID = ""
	s.snoozeUntil = &until
}

// Geofences returns a copy of every geofence of the active trip.
func (s *TripSessionStore) Geofences() []domain.Geofence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	return append([]domain.Geofence(nil), s.session.Geofences...)
}

func (s *TripSessionStore) ArmedGeofences() []domain.Geofence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	var armed []domain.Geofence
	for _, gf := range s.session.Geofences {
		if gf.Armed {
			armed = append(armed, gf)
		}
	}
	return armed
}

// Disarm reports whether the geofence moved from armed to disarmed.
func (s *TripSessionStore) Disarm(id string) bool {
	return s.setArmed(id, false)
}

// Rearm reports whether the geofence moved from disarmed to armed. The
// radius is left as it was.
func (s *TripSessionStore) Rearm(id string) bool {
	return s.setArmed(id, true)
}

func (s *TripSessionStore) setArmed(id string, armed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return false
	}
	for i := range s.session.Geofences {
		gf := &s.session.Geofences[i]
		if gf.ID != id {
			continue
		}
		if gf.Armed == armed {
			return false
		}
		gf.Armed = armed
		return true
	}
	return false
}

func (s *TripSessionStore) RecordPosition(sample domain.LocationSample, nearestID string, distance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.lastSample = &sample
	s.nearestID = nearestID
	s.distance = &distance
	s.trackingError = ""
}

func (s *TripSessionStore) SetTrackingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.trackingError = errString(err)
}

func (s *TripSessionStore) SetFeedbackError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.feedbackError = errString(err)
}

func (s *TripSessionStore) Status() domain.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.SessionStatus{State: s.state}
	if s.session == nil {
		return st
	}
	session := s.session.Clone()
	st.Session = &session
	st.NearestGeofenceID = s.nearestID
	st.FiringGeofenceID = s.firingID
	st.TrackingError = s.trackingError
	st.FeedbackError = s.feedbackError
	if s.distance != nil {
		d := *s.distance
		eta := geo.EstimateETA(d, session.TravelMode.AverageSpeed()).Seconds()
		st.DistanceMeters = &d
		st.ETASeconds = &eta
	}
	if s.lastSample != nil {
		sample := *s.lastSample
		st.LastSample = &sample
	}
	if s.snoozeUntil != nil {
		until := *s.snoozeUntil
		st.SnoozeUntil = &until
	}
	return st
}

func buildGeofences(req domain.StartTripRequest) ([]domain.Geofence, error) {
	if len(req.Destinations) == 0 {
		return nil, fmt.Errorf("%w: at least one destination is required", domain.ErrInvalidArgument)
	}

	seen := make(map[string]struct{}, len(req.Destinations))
	geofences := make([]domain.Geofence, 0, len(req.Destinations))
	for i, d := range req.Destinations {
		if err := d.Coordinate.Validate(); err != nil {
			return nil, fmt.Errorf("%w: destination %d: %v", domain.ErrInvalidArgument, i, err)
		}
		radius := d.EffectiveRadius(req.RadiusMeters)
		if !(radius > 0) {
			return nil, fmt.Errorf("%w: destination %d: radius must be positive", domain.ErrInvalidArgument, i)
		}
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("stop-%d", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate destination id %q", domain.ErrInvalidArgument, id)
		}
		seen[id] = struct{}{}
		geofences = append(geofences, domain.Geofence{
			ID:           id,
			Name:         d.Name,
			Center:       d.Coordinate,
			RadiusMeters: radius,
			Armed:        true,
		})
	}
	return geofences, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
