package database

import (
	"context"
	"time"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

type TripRepository interface {
	GetTrip(ctx context.Context, tripID string) (*domain.TripRecord, error)
	ListTrips(ctx context.Context) ([]domain.TripRecord, error)
	MarkStatus(ctx context.Context, tripID string, status domain.TripStatus, at time.Time) error
	InsertAlarmEvent(ctx context.Context, ev *domain.AlarmEvent) error
	ListAlarmEvents(ctx context.Context, tripID string) ([]domain.AlarmEvent, error)
}
