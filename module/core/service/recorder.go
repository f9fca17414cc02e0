package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/database"
)

// EventRecorder writes lifecycle events to the alarm history.
type EventRecorder struct {
	repo   database.TripRepository
	logger logrus.FieldLogger
}

func NewEventRecorder(repo database.TripRepository, logger logrus.FieldLogger) *EventRecorder {
	return &EventRecorder{repo: repo, logger: logger.WithField("component", "event_recorder")}
}

func (r *EventRecorder) Notify(ctx context.Context, ev domain.AlarmEvent) {
	if !ev.Lifecycle() {
		return
	}
	if err := r.repo.InsertAlarmEvent(ctx, &ev); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"trip_id": ev.TripID,
			"event":   ev.Type,
		}).Warn("record alarm event failed")
	}
}
