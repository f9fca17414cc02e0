package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

type mockTripService struct {
	listTripsFn      func(ctx context.Context) ([]domain.TripRecord, error)
	alarmHistoryFn   func(ctx context.Context, tripID string) ([]domain.AlarmEvent, error)
	startSavedTripFn func(ctx context.Context, tripID string) (domain.SessionStatus, error)
	startTripFn      func(ctx context.Context, req domain.StartTripRequest) (domain.SessionStatus, error)
	commandFn        func(name string) (domain.SessionStatus, error)
	status           domain.SessionStatus
}

func (m *mockTripService) ListTrips(ctx context.Context) ([]domain.TripRecord, error) {
	return m.listTripsFn(ctx)
}

func (m *mockTripService) AlarmHistory(ctx context.Context, tripID string) ([]domain.AlarmEvent, error) {
	return m.alarmHistoryFn(ctx, tripID)
}

func (m *mockTripService) StartSavedTrip(ctx context.Context, tripID string) (domain.SessionStatus, error) {
	return m.startSavedTripFn(ctx, tripID)
}

func (m *mockTripService) StartTrip(ctx context.Context, req domain.StartTripRequest) (domain.SessionStatus, error) {
	return m.startTripFn(ctx, req)
}

func (m *mockTripService) CompleteTrip(context.Context) (domain.SessionStatus, error) {
	return m.commandFn("complete")
}

func (m *mockTripService) CancelTrip(context.Context) (domain.SessionStatus, error) {
	return m.commandFn("cancel")
}

func (m *mockTripService) StopAlarm(context.Context) (domain.SessionStatus, error) {
	return m.commandFn("stop")
}

func (m *mockTripService) SnoozeAlarm(context.Context) (domain.SessionStatus, error) {
	return m.commandFn("snooze")
}

func (m *mockTripService) RetryTracking(context.Context) (domain.SessionStatus, error) {
	return m.commandFn("retry")
}

func (m *mockTripService) Status() domain.SessionStatus {
	return m.status
}

func setupRouter(svc tripService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewTripHandler(svc, nil)
	h.Register(r.Group(""))
	return r
}

func armedStatus() domain.SessionStatus {
	dist := 1200.0
	eta := 108.1
	return domain.SessionStatus{
		State: domain.AlarmArmed,
		Session: &domain.TripSession{
			TripID:     "trip-1",
			TravelMode: domain.TravelDriving,
			StartedAt:  time.Unix(1715003456, 0),
			Geofences: []domain.Geofence{
				{ID: "stop-1", Center: domain.Coordinate{Latitude: 12.9716, Longitude: 77.5946}, RadiusMeters: 500, Armed: true},
			},
		},
		NearestGeofenceID: "stop-1",
		DistanceMeters:    &dist,
		ETASeconds:        &eta,
	}
}

func TestGetSession(t *testing.T) {
	svc := &mockTripService{status: armedStatus()}

	r := setupRouter(svc)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/session", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp sessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.State != domain.AlarmArmed {
		t.Errorf("expected armed, got %s", resp.State)
	}
	if resp.TripID != "trip-1" {
		t.Errorf("expected trip-1, got %s", resp.TripID)
	}
	if len(resp.Geofences) != 1 || !resp.Geofences[0].Armed {
		t.Errorf("unexpected geofences: %+v", resp.Geofences)
	}
	if resp.DistanceMeters == nil || *resp.DistanceMeters != 1200 {
		t.Errorf("expected distance 1200, got %v", resp.DistanceMeters)
	}
	if resp.StartedAt != 1715003456 {
		t.Errorf("expected 1715003456, got %d", resp.StartedAt)
	}
}

func TestGetSession_Idle(t *testing.T) {
	svc := &mockTripService{status: domain.SessionStatus{State: domain.AlarmIdle}}

	r := setupRouter(svc)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/session", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"state":"idle"}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestStartTrip_Success(t *testing.T) {
	svc := &mockTripService{
		startTripFn: func(_ context.Context, req domain.StartTripRequest) (domain.SessionStatus, error) {
			if len(req.Destinations) != 1 {
				t.Fatalf("expected 1 destination, got %d", len(req.Destinations))
			}
			if req.Destinations[0].Coordinate.Latitude != 12.9716 {
				t.Errorf("expected 12.9716, got %f", req.Destinations[0].Coordinate.Latitude)
			}
			if req.RadiusMeters != 500 {
				t.Errorf("expected 500, got %f", req.RadiusMeters)
			}
			if req.TravelMode != domain.TravelWalking {
				t.Errorf("expected walking, got %s", req.TravelMode)
			}
			return armedStatus(), nil
		},
	}

	body := `{"destinations":[{"name":"Home","latitude":12.9716,"longitude":77.5946}],"radius_meters":500,"travel_mode":"walking"}`
	r := setupRouter(svc)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/session", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStartTrip_InvalidBody(t *testing.T) {
	svc := &mockTripService{}

	r := setupRouter(svc)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/session", bytes.NewBufferString(`{"radius_meters":"far"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStartTrip_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid radius", fmt.Errorf("%w: radius must be positive", domain.ErrInvalidArgument), http.StatusBadRequest},
		{"already active", domain.ErrTripActive, http.StatusConflict},
		{"stopped", domain.ErrManagerStopped, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTripService{
				startTripFn: func(context.Context, domain.StartTripRequest) (domain.SessionStatus, error) {
					return domain.SessionStatus{}, tt.err
				},
			}

			r := setupRouter(svc)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/session", bytes.NewBufferString(`{"destinations":[]}`))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestStartSavedTrip(t *testing.T) {
	svc := &mockTripService{
		startSavedTripFn: func(_ context.Context, tripID string) (domain.SessionStatus, error) {
			if tripID == "missing" {
				return domain.SessionStatus{}, fmt.Errorf("%w: missing", domain.ErrTripNotFound)
			}
			return armedStatus(), nil
		},
	}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/trips/trip-1/start", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/trips/missing/start", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSessionCommands(t *testing.T) {
	routes := map[string]string{
		"/session/complete":       "complete",
		"/session/cancel":         "cancel",
		"/session/alarm/stop":     "stop",
		"/session/alarm/snooze":   "snooze",
		"/session/tracking/retry": "retry",
	}

	for path, command := range routes {
		t.Run(command, func(t *testing.T) {
			var called string
			svc := &mockTripService{
				commandFn: func(name string) (domain.SessionStatus, error) {
					called = name
					return domain.SessionStatus{State: domain.AlarmSnoozed}, nil
				},
			}

			r := setupRouter(svc)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", path, nil)
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if called != command {
				t.Errorf("expected %s, got %s", command, called)
			}
		})
	}
}

func TestListTrips(t *testing.T) {
	svc := &mockTripService{
		listTripsFn: func(context.Context) ([]domain.TripRecord, error) {
			return []domain.TripRecord{{
				ID:           "trip-1",
				Name:         "Commute",
				TravelMode:   domain.TravelTransit,
				RadiusMeters: 400,
				Status:       domain.TripPlanned,
				Destinations: []domain.Destination{{ID: "office", Coordinate: domain.Coordinate{Latitude: 12.9716, Longitude: 77.5946}}},
				UpdatedAt:    time.Unix(1715003456, 0),
			}}, nil
		},
	}

	r := setupRouter(svc)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/trips", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp []tripResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp) != 1 || resp[0].Destinations[0].ID != "office" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp[0].UpdatedAt != 1715003456 {
		t.Errorf("expected 1715003456, got %d", resp[0].UpdatedAt)
	}
}

func TestListTrips_Error(t *testing.T) {
	svc := &mockTripService{
		listTripsFn: func(context.Context) ([]domain.TripRecord, error) {
			return nil, errors.New("db error")
		},
	}

	r := setupRouter(svc)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/trips", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestAlarmHistory(t *testing.T) {
	dist := 450.0
	svc := &mockTripService{
		alarmHistoryFn: func(_ context.Context, tripID string) ([]domain.AlarmEvent, error) {
			if tripID != "trip-1" {
				t.Fatalf("unexpected tripID: %s", tripID)
			}
			return []domain.AlarmEvent{{
				ID:             "ev-1",
				TripID:         "trip-1",
				Type:           domain.EventAlarmFiring,
				State:          domain.AlarmFiring,
				GeofenceID:     "stop-1",
				DistanceMeters: &dist,
				Timestamp:      time.Unix(1715003456, 0),
			}}, nil
		},
	}

	r := setupRouter(svc)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/trips/trip-1/alarms", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp []eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp) != 1 || resp[0].Event != domain.EventAlarmFiring || resp[0].Timestamp != 1715003456 {
		t.Errorf("unexpected response %+v", resp)
	}
}
