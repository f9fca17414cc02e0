package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

type tripService interface {
	ListTrips(ctx context.Context) ([]domain.TripRecord, error)
	AlarmHistory(ctx context.Context, tripID string) ([]domain.AlarmEvent, error)
	StartSavedTrip(ctx context.Context, tripID string) (domain.SessionStatus, error)
	StartTrip(ctx context.Context, req domain.StartTripRequest) (domain.SessionStatus, error)
	CompleteTrip(ctx context.Context) (domain.SessionStatus, error)
	CancelTrip(ctx context.Context) (domain.SessionStatus, error)
	StopAlarm(ctx context.Context) (domain.SessionStatus, error)
	SnoozeAlarm(ctx context.Context) (domain.SessionStatus, error)
	RetryTracking(ctx context.Context) (domain.SessionStatus, error)
	Status() domain.SessionStatus
}

type destinationRequest struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

type startTripRequest struct {
	TripID       string               `json:"trip_id"`
	Destinations []destinationRequest `json:"destinations" binding:"required"`
	RadiusMeters float64              `json:"radius_meters"`
	TravelMode   string               `json:"travel_mode"`
}

type TripHandler struct {
	svc tripService
	hub *Hub
}

// NewTripHandler wires the REST routes; the event stream route is added only
// when hub is non-nil.
func NewTripHandler(svc tripService, hub *Hub) *TripHandler {
	return &TripHandler{svc: svc, hub: hub}
}

func (h *TripHandler) Register(r *gin.RouterGroup) {
	r.GET("/trips", h.ListTrips)
	r.GET("/trips/:trip_id/alarms", h.AlarmHistory)
	r.POST("/trips/:trip_id/start", h.StartSavedTrip)

	r.GET("/session", h.GetSession)
	r.POST("/session", h.StartTrip)
	r.POST("/session/complete", h.CompleteTrip)
	r.POST("/session/cancel", h.CancelTrip)
	r.POST("/session/alarm/stop", h.StopAlarm)
	r.POST("/session/alarm/snooze", h.SnoozeAlarm)
	r.POST("/session/tracking/retry", h.RetryTracking)
	if h.hub != nil {
		r.GET("/session/stream", h.hub.ServeWS)
	}
}

func (h *TripHandler) ListTrips(c *gin.Context) {
	trips, err := h.svc.ListTrips(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch trips"})
		return
	}

	results := make([]tripResponse, len(trips))
	for i := range trips {
		results[i] = toTripResponse(&trips[i])
	}
	c.JSON(http.StatusOK, results)
}

func (h *TripHandler) AlarmHistory(c *gin.Context) {
	events, err := h.svc.AlarmHistory(c.Request.Context(), c.Param("trip_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alarm history"})
		return
	}

	results := make([]eventResponse, len(events))
	for i := range events {
		results[i] = toEventResponse(&events[i])
	}
	c.JSON(http.StatusOK, results)
}

func (h *TripHandler) StartSavedTrip(c *gin.Context) {
	status, err := h.svc.StartSavedTrip(c.Request.Context(), c.Param("trip_id"))
	h.respond(c, status, err)
}

func (h *TripHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(h.svc.Status()))
}

func (h *TripHandler) StartTrip(c *gin.Context) {
	var body startTripRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req := domain.StartTripRequest{
		TripID:       body.TripID,
		RadiusMeters: body.RadiusMeters,
		TravelMode:   domain.TravelMode(body.TravelMode),
	}
	for _, d := range body.Destinations {
		req.Destinations = append(req.Destinations, domain.Destination{
			ID:           d.ID,
			Name:         d.Name,
			Coordinate:   domain.Coordinate{Latitude: d.Latitude, Longitude: d.Longitude},
			RadiusMeters: d.RadiusMeters,
		})
	}

	status, err := h.svc.StartTrip(c.Request.Context(), req)
	h.respond(c, status, err)
}

func (h *TripHandler) CompleteTrip(c *gin.Context) {
	status, err := h.svc.CompleteTrip(c.Request.Context())
	h.respond(c, status, err)
}

func (h *TripHandler) CancelTrip(c *gin.Context) {
	status, err := h.svc.CancelTrip(c.Request.Context())
	h.respond(c, status, err)
}

func (h *TripHandler) StopAlarm(c *gin.Context) {
	status, err := h.svc.StopAlarm(c.Request.Context())
	h.respond(c, status, err)
}

func (h *TripHandler) SnoozeAlarm(c *gin.Context) {
	status, err := h.svc.SnoozeAlarm(c.Request.Context())
	h.respond(c, status, err)
}

func (h *TripHandler) RetryTracking(c *gin.Context) {
	status, err := h.svc.RetryTracking(c.Request.Context())
	h.respond(c, status, err)
}

func (h *TripHandler) respond(c *gin.Context, status domain.SessionStatus, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(status))
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTripActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrTripNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "trip not found"})
	case errors.Is(err, domain.ErrManagerStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alarm manager stopped"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
