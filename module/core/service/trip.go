package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/database"
)

type alarmManager interface {
	StartTrip(ctx context.Context, req domain.StartTripRequest) (domain.SessionStatus, error)
	CompleteTrip(ctx context.Context) (domain.SessionStatus, error)
	CancelTrip(ctx context.Context) (domain.SessionStatus, error)
	StopAlarm(ctx context.Context) (domain.SessionStatus, error)
	SnoozeAlarm(ctx context.Context) (domain.SessionStatus, error)
	RetryTracking(ctx context.Context) (domain.SessionStatus, error)
	Status() domain.SessionStatus
}

// TripService connects saved trips to the alarm manager and keeps the trip
// status in the data layer in step with the session.
type TripService struct {
	repo   database.TripRepository
	alarms alarmManager
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewTripService(repo database.TripRepository, alarms alarmManager, logger logrus.FieldLogger) *TripService {
	return &TripService{
		repo:   repo,
		alarms: alarms,
		logger: logger.WithField("component", "trip_service"),
		now:    time.Now,
	}
}

func (s *TripService) ListTrips(ctx context.Context) ([]domain.TripRecord, error) {
	return s.repo.ListTrips(ctx)
}

func (s *TripService) AlarmHistory(ctx context.Context, tripID string) ([]domain.AlarmEvent, error) {
	return s.repo.ListAlarmEvents(ctx, tripID)
}

func (s *TripService) StartSavedTrip(ctx context.Context, tripID string) (domain.SessionStatus, error) {
	rec, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return domain.SessionStatus{}, err
	}

	status, err := s.alarms.StartTrip(ctx, rec.StartRequest())
	if err != nil {
		return status, err
	}
	s.markStatus(ctx, rec.ID, domain.TripActive)
	return status, nil
}

// StartTrip starts an ad-hoc trip that has no saved record.
func (s *TripService) StartTrip(ctx context.Context, req domain.StartTripRequest) (domain.SessionStatus, error) {
	return s.alarms.StartTrip(ctx, req)
}

func (s *TripService) CompleteTrip(ctx context.Context) (domain.SessionStatus, error) {
	return s.end(ctx, s.alarms.CompleteTrip, domain.TripCompleted)
}

func (s *TripService) CancelTrip(ctx context.Context) (domain.SessionStatus, error) {
	return s.end(ctx, s.alarms.CancelTrip, domain.TripCancelled)
}

// end marks the trip the manager reports as ended, which may differ from the
// one active when the call was made.
func (s *TripService) end(ctx context.Context, fn func(context.Context) (domain.SessionStatus, error), final domain.TripStatus) (domain.SessionStatus, error) {
	status, err := fn(ctx)
	if err != nil {
		return status, err
	}
	if status.EndedTripID != "" {
		s.markStatus(ctx, status.EndedTripID, final)
	}
	return status, nil
}

func (s *TripService) StopAlarm(ctx context.Context) (domain.SessionStatus, error) {
	return s.alarms.StopAlarm(ctx)
}

func (s *TripService) SnoozeAlarm(ctx context.Context) (domain.SessionStatus, error) {
	return s.alarms.SnoozeAlarm(ctx)
}

func (s *TripService) RetryTracking(ctx context.Context) (domain.SessionStatus, error) {
	return s.alarms.RetryTracking(ctx)
}

func (s *TripService) Status() domain.SessionStatus {
	return s.alarms.Status()
}

// markStatus is best effort; ad-hoc trips have no record to update.
func (s *TripService) markStatus(ctx context.Context, tripID string, status domain.TripStatus) {
	err := s.repo.MarkStatus(ctx, tripID, status, s.now())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTripNotFound):
		s.logger.WithField("trip_id", tripID).Debug("no saved trip to update")
	default:
		s.logger.WithError(err).WithField("trip_id", tripID).Warn("update trip status failed")
	}
}
