package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/database"
)

var _ database.TripRepository = (*TripRepo)(nil)

// TripRepo reads saved trips from trips and trip_destinations and keeps the
// alarm history in alarm_events. A NULL destination radius means the trip
// radius applies.
type TripRepo struct {
	db *sql.DB
}

func NewTripRepo(db *sql.DB) *TripRepo {
	return &TripRepo{db: db}
}

func (r *TripRepo) GetTrip(ctx context.Context, tripID string) (*domain.TripRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, travel_mode, radius_meters, status, updated_at FROM trips WHERE id = $1`,
		tripID,
	)

	var t domain.TripRecord
	if err := row.Scan(&t.ID, &t.Name, &t.TravelMode, &t.RadiusMeters, &t.Status, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
		}
		return nil, err
	}

	dests, err := r.destinations(ctx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Destinations = dests[t.ID]
	return &t, nil
}

func (r *TripRepo) ListTrips(ctx context.Context) ([]domain.TripRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, travel_mode, radius_meters, status, updated_at FROM trips ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var trips []domain.TripRecord
	var ids []string
	for rows.Next() {
		var t domain.TripRecord
		if err := rows.Scan(&t.ID, &t.Name, &t.TravelMode, &t.RadiusMeters, &t.Status, &t.UpdatedAt); err != nil {
			return nil, err
		}
		trips = append(trips, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return trips, nil
	}

	dests, err := r.destinations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range trips {
		trips[i].Destinations = dests[trips[i].ID]
	}
	return trips, nil
}

func (r *TripRepo) destinations(ctx context.Context, tripIDs []string) (map[string][]domain.Destination, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT trip_id, id, name, latitude, longitude, radius_meters FROM trip_destinations WHERE trip_id = ANY($1) ORDER BY trip_id, position`,
		pq.Array(tripIDs),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]domain.Destination, len(tripIDs))
	for rows.Next() {
		var (
			tripID string
			d      domain.Destination
			radius sql.NullFloat64
		)
		if err := rows.Scan(&tripID, &d.ID, &d.Name, &d.Coordinate.Latitude, &d.Coordinate.Longitude, &radius); err != nil {
			return nil, err
		}
		d.RadiusMeters = radius.Float64
		out[tripID] = append(out[tripID], d)
	}
	return out, rows.Err()
}

func (r *TripRepo) MarkStatus(ctx context.Context, tripID string, status domain.TripStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE trips SET status = $2, updated_at = $3 WHERE id = $1`,
		tripID, status, at,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTripNotFound, tripID)
	}
	return nil
}

func (r *TripRepo) InsertAlarmEvent(ctx context.Context, ev *domain.AlarmEvent) error {
	var lat, lon sql.NullFloat64
	if ev.Location != nil {
		lat = sql.NullFloat64{Float64: ev.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: ev.Location.Longitude, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alarm_events (id, trip_id, geofence_id, event, state, distance_meters, latitude, longitude, error, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.TripID, ev.GeofenceID, ev.Type, ev.State, nullFloat(ev.DistanceMeters), lat, lon, ev.Error, ev.Timestamp,
	)
	return err
}

func (r *TripRepo) ListAlarmEvents(ctx context.Context, tripID string) ([]domain.AlarmEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trip_id, geofence_id, event, state, distance_meters, latitude, longitude, error, created_at FROM alarm_events WHERE trip_id = $1 ORDER BY created_at ASC`,
		tripID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.AlarmEvent
	for rows.Next() {
		var ev domain.AlarmEvent
		var dist, lat, lon sql.NullFloat64
		if err := rows.Scan(&ev.ID, &ev.TripID, &ev.GeofenceID, &ev.Type, &ev.State, &dist, &lat, &lon, &ev.Error, &ev.Timestamp); err != nil {
			return nil, err
		}
		if dist.Valid {
			d := dist.Float64
			ev.DistanceMeters = &d
		}
		if lat.Valid && lon.Valid {
			ev.Location = &domain.Coordinate{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
