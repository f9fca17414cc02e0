package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/tracking"
)

const (
	DefaultSnoozeDelay   = 60 * time.Second
	defaultNotifyTimeout = 5 * time.Second
)

type AlarmConfig struct {
	SnoozeDelay   time.Duration
	NotifyTimeout time.Duration
}

type eventKind int

const (
	evStart eventKind = iota
	evComplete
	evCancel
	evStop
	evSnooze
	evRetryTracking
	evSnoozeExpired
	evLocation
)

type event struct {
	kind   eventKind
	req    domain.StartTripRequest
	gen    uint64
	update tracking.Update
	reply  chan result
}

type result struct {
	status domain.SessionStatus
	err    error
}

// AlarmManager owns the alarm state machine. Every input, whether a user
// action, a location update or a snooze expiry, is applied one at a time by
// the goroutine running Run.
type AlarmManager struct {
	store     *TripSessionStore
	source    tracking.Source
	feedback  Feedback
	notifiers []Notifier
	cfg       AlarmConfig
	logger    logrus.FieldLogger
	now       func() time.Time

	events  chan event
	done    chan struct{}
	runOnce sync.Once

	// owned by the loop
	firingID    string
	snoozedID   string
	snoozeGen   uint64
	snoozeTimer *time.Timer
	trackGen    uint64
	trackCancel context.CancelFunc
	trackWG     sync.WaitGroup
}

func NewAlarmManager(store *TripSessionStore, source tracking.Source, feedback Feedback, cfg AlarmConfig, logger logrus.FieldLogger, notifiers ...Notifier) *AlarmManager {
	if cfg.SnoozeDelay <= 0 {
		cfg.SnoozeDelay = DefaultSnoozeDelay
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if feedback == nil {
		feedback = NopFeedback{}
	}
	return &AlarmManager{
		store:     store,
		source:    source,
		feedback:  feedback,
		notifiers: notifiers,
		cfg:       cfg,
		logger:    logger.WithField("component", "alarm_manager"),
		now:       time.Now,
		events:    make(chan event),
		done:      make(chan struct{}),
	}
}

// Run applies events until ctx is done, then stops tracking, feedback and
// any pending snooze. It must be called exactly once.
func (m *AlarmManager) Run(ctx context.Context) error {
	ran := false
	m.runOnce.Do(func() { ran = true })
	if !ran {
		return errors.New("alarm manager already running")
	}

	defer close(m.done)
	defer m.shutdown()

	m.logger.Info("alarm manager started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("alarm manager stopping")
			return nil
		case ev := <-m.events:
			res := m.apply(ctx, ev)
			if ev.reply != nil {
				ev.reply <- res
			}
		}
	}
}

func (m *AlarmManager) StartTrip(ctx context.Context, req domain.StartTripRequest) (domain.SessionStatus, error) {
	return m.submit(ctx, event{kind: evStart, req: req})
}

func (m *AlarmManager) CompleteTrip(ctx context.Context) (domain.SessionStatus, error) {
	return m.submit(ctx, event{kind: evComplete})
}

func (m *AlarmManager) CancelTrip(ctx context.Context) (domain.SessionStatus, error) {
	return m.submit(ctx, event{kind: evCancel})
}

func (m *AlarmManager) StopAlarm(ctx context.Context) (domain.SessionStatus, error) {
	return m.submit(ctx, event{kind: evStop})
}

func (m *AlarmManager) SnoozeAlarm(ctx context.Context) (domain.SessionStatus, error) {
	return m.submit(ctx, event{kind: evSnooze})
}

func (m *AlarmManager) RetryTracking(ctx context.Context) (domain.SessionStatus, error) {
	return m.submit(ctx, event{kind: evRetryTracking})
}

// Status reads the store directly and never waits on the loop.
func (m *AlarmManager) Status() domain.SessionStatus {
	return m.store.Status()
}

func (m *AlarmManager) submit(ctx context.Context, ev event) (domain.SessionStatus, error) {
	ev.reply = make(chan result, 1)
	select {
	case m.events <- ev:
	case <-m.done:
		return domain.SessionStatus{}, domain.ErrManagerStopped
	case <-ctx.Done():
		return domain.SessionStatus{}, ctx.Err()
	}
	select {
	case res := <-ev.reply:
		return res.status, res.err
	case <-m.done:
		return domain.SessionStatus{}, domain.ErrManagerStopped
	case <-ctx.Done():
		return domain.SessionStatus{}, ctx.Err()
	}
}

// post queues an internal event, giving up once the loop has exited.
func (m *AlarmManager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *AlarmManager) apply(ctx context.Context, ev event) result {
	switch ev.kind {
	case evStart:
		return m.handleStart(ctx, ev.req)
	case evComplete:
		return m.handleEnd(ctx, domain.EventTripCompleted)
	case evCancel:
		return m.handleEnd(ctx, domain.EventTripCancelled)
	case evStop:
		m.handleStop(ctx)
	case evSnooze:
		m.handleSnooze(ctx)
	case evRetryTracking:
		m.handleRetryTracking(ctx)
	case evSnoozeExpired:
		m.handleSnoozeExpired(ctx, ev.gen)
	case evLocation:
		m.handleUpdate(ctx, ev.gen, ev.update)
	}
	return result{status: m.store.Status()}
}

func (m *AlarmManager) handleStart(ctx context.Context, req domain.StartTripRequest) result {
	session, err := m.store.StartTrip(req)
	if err != nil {
		return result{status: m.store.Status(), err: err}
	}

	m.logger.WithFields(logrus.Fields{
		"trip_id":   session.TripID,
		"geofences": len(session.Geofences),
		"mode":      session.TravelMode,
	}).Info("trip started")
	m.emit(ctx, m.newEvent(domain.EventTripStarted, session.TripID, ""))
	m.startTracking(ctx)
	return result{status: m.store.Status()}
}

func (m *AlarmManager) handleEnd(ctx context.Context, kind domain.AlarmEventType) result {
	if !m.store.Active() {
		return result{status: m.store.Status()}
	}

	m.stopTracking()
	m.cancelSnooze()
	if m.store.State() == domain.AlarmFiring {
		m.stopFeedback(ctx)
	}
	m.firingID = ""

	var session domain.TripSession
	if kind == domain.EventTripCompleted {
		session, _ = m.store.CompleteTrip()
	} else {
		session, _ = m.store.CancelTrip()
	}

	m.logger.WithFields(logrus.Fields{"trip_id": session.TripID, "event": kind}).Info("trip ended")
	m.emit(ctx, m.newEvent(kind, session.TripID, ""))

	status := m.store.Status()
	status.EndedTripID = session.TripID
	return result{status: status}
}

func (m *AlarmManager) handleStop(ctx context.Context) {
	if m.store.State() != domain.AlarmFiring {
		return
	}

	m.stopFeedback(ctx)
	m.store.SetState(domain.AlarmArmed)
	ev := m.newEvent(domain.EventAlarmStopped, m.store.TripID(), m.firingID)
	m.firingID = ""
	m.logger.WithField("geofence_id", ev.GeofenceID).Info("alarm stopped")
	m.emit(ctx, ev)
}

func (m *AlarmManager) handleSnooze(ctx context.Context) {
	if m.store.State() != domain.AlarmFiring {
		return
	}

	m.stopFeedback(ctx)
	m.snoozedID = m.firingID
	m.firingID = ""
	m.snoozeGen++
	gen := m.snoozeGen
	m.snoozeTimer = time.AfterFunc(m.cfg.SnoozeDelay, func() {
		m.post(event{kind: evSnoozeExpired, gen: gen})
	})
	m.store.SetSnoozed(m.now().Add(m.cfg.SnoozeDelay))

	ev := m.newEvent(domain.EventAlarmSnoozed, m.store.TripID(), m.snoozedID)
	m.logger.WithFields(logrus.Fields{"geofence_id": m.snoozedID, "delay": m.cfg.SnoozeDelay}).Info("alarm snoozed")
	m.emit(ctx, ev)
}

func (m *AlarmManager) handleSnoozeExpired(ctx context.Context, gen uint64) {
	if gen != m.snoozeGen || m.store.State() != domain.AlarmSnoozed {
		return
	}

	id := m.snoozedID
	m.snoozedID = ""
	m.snoozeTimer = nil
	m.store.Rearm(id)
	m.store.SetState(domain.AlarmArmed)

	m.logger.WithField("geofence_id", id).Info("alarm re-armed")
	m.emit(ctx, m.newEvent(domain.EventAlarmRearmed, m.store.TripID(), id))
}

func (m *AlarmManager) handleRetryTracking(ctx context.Context) {
	if !m.store.Active() {
		return
	}
	m.stopTracking()
	m.store.SetTrackingError(nil)
	m.startTracking(ctx)
}

func (m *AlarmManager) handleUpdate(ctx context.Context, gen uint64, u tracking.Update) {
	if gen != m.trackGen || !m.store.Active() {
		return
	}

	if u.Err != nil {
		if domain.IsTransient(u.Err) {
			m.logger.WithError(u.Err).Debug("transient location error")
			return
		}
		m.trackingFailed(ctx, u.Err)
		m.stopTracking()
		return
	}

	sample := u.Sample
	if err := sample.Coordinate.Validate(); err != nil {
		m.logger.WithError(err).Warn("dropping invalid location sample")
		return
	}

	geofences := m.store.Geofences()
	nearest, dist, ok := Nearest(sample, geofences)
	if ok {
		m.store.RecordPosition(sample, nearest.ID, dist)
	}

	// only the first triggered geofence fires; the rest stay armed
	if m.store.State() == domain.AlarmArmed {
		if triggered := Evaluate(sample, geofences); len(triggered) > 0 {
			m.fire(ctx, sample, triggered[0])
		}
	}

	if ok {
		ev := m.newEvent(domain.EventPositionUpdated, m.store.TripID(), nearest.ID)
		ev.DistanceMeters = &dist
		ev.Location = &sample.Coordinate
		m.emit(ctx, ev)
	}
}

func (m *AlarmManager) fire(ctx context.Context, sample domain.LocationSample, gf domain.Geofence) {
	if !m.store.Disarm(gf.ID) {
		return
	}
	m.store.SetFiring(gf.ID)
	m.firingID = gf.ID

	ev := m.newEvent(domain.EventAlarmFiring, m.store.TripID(), gf.ID)
	dist := distanceTo(sample, gf)
	ev.DistanceMeters = &dist
	ev.Location = &sample.Coordinate

	m.logger.WithFields(logrus.Fields{
		"trip_id":     ev.TripID,
		"geofence_id": gf.ID,
		"distance":    dist,
		"radius":      gf.RadiusMeters,
	}).Info("alarm firing")
	m.emit(ctx, ev)

	fctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
	defer cancel()
	if err := m.feedback.Play(fctx, ev); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrFeedbackUnavailable, err)
		m.store.SetFeedbackError(err)
		m.logger.WithError(err).Warn("feedback failed to start")
		fe := m.newEvent(domain.EventFeedbackUnavailable, ev.TripID, gf.ID)
		fe.Error = err.Error()
		m.emit(ctx, fe)
		return
	}
	m.store.SetFeedbackError(nil)
}

func (m *AlarmManager) startTracking(ctx context.Context) {
	m.trackGen++
	gen := m.trackGen

	trackCtx, cancel := context.WithCancel(ctx)
	updates, err := m.source.Start(trackCtx)
	if err != nil {
		cancel()
		m.trackingFailed(ctx, err)
		return
	}
	m.trackCancel = cancel

	m.trackWG.Add(1)
	go m.pump(trackCtx, gen, updates)
}

// pump forwards source updates into the loop, tagged with the tracking
// generation so updates from a stopped stream are discarded.
func (m *AlarmManager) pump(ctx context.Context, gen uint64, updates <-chan tracking.Update) {
	defer m.trackWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			select {
			case m.events <- event{kind: evLocation, gen: gen, update: u}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// stopTracking returns once the source is stopped and the pump has exited.
func (m *AlarmManager) stopTracking() {
	m.trackGen++
	if m.trackCancel != nil {
		m.trackCancel()
		m.trackCancel = nil
	}
	m.source.Stop()
	m.trackWG.Wait()
}

func (m *AlarmManager) trackingFailed(ctx context.Context, err error) {
	if !errors.Is(err, domain.ErrPermissionDenied) && !errors.Is(err, domain.ErrTrackingUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrTrackingUnavailable, err)
	}
	m.store.SetTrackingError(err)
	m.logger.WithError(err).Warn("location tracking unavailable")

	ev := m.newEvent(domain.EventTrackingUnavailable, m.store.TripID(), "")
	ev.Error = err.Error()
	m.emit(ctx, ev)
}

func (m *AlarmManager) cancelSnooze() {
	m.snoozeGen++
	if m.snoozeTimer != nil {
		m.snoozeTimer.Stop()
		m.snoozeTimer = nil
	}
	m.snoozedID = ""
}

func (m *AlarmManager) stopFeedback(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
	defer cancel()
	if err := m.feedback.Stop(fctx); err != nil {
		m.logger.WithError(err).Warn("feedback failed to stop")
	}
}

func (m *AlarmManager) shutdown() {
	m.stopTracking()
	m.cancelSnooze()
	if m.store.State() == domain.AlarmFiring {
		m.stopFeedback(context.Background())
	}
}

func (m *AlarmManager) emit(ctx context.Context, ev domain.AlarmEvent) {
	if len(m.notifiers) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
	defer cancel()
	for _, n := range m.notifiers {
		n.Notify(nctx, ev)
	}
}

func (m *AlarmManager) newEvent(kind domain.AlarmEventType, tripID, geofenceID string) domain.AlarmEvent {
	return domain.AlarmEvent{
		ID:         uuid.NewString(),
		TripID:     tripID,
		Type:       kind,
		State:      m.store.State(),
		GeofenceID: geofenceID,
		Timestamp:  m.now(),
	}
}
