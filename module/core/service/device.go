package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/cache"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/publisher"
)

// DeviceFeedback sends play and stop commands to the traveller's device.
type DeviceFeedback struct {
	pub publisher.AlarmPublisher
	now func() time.Time

	mu     sync.Mutex
	tripID string
}

func NewDeviceFeedback(pub publisher.AlarmPublisher) *DeviceFeedback {
	return &DeviceFeedback{pub: pub, now: time.Now}
}

func (f *DeviceFeedback) Play(ctx context.Context, ev domain.AlarmEvent) error {
	f.mu.Lock()
	f.tripID = ev.TripID
	f.mu.Unlock()
	return f.pub.PublishFeedback(ctx, &domain.FeedbackCommand{
		Action:     domain.FeedbackPlay,
		TripID:     ev.TripID,
		GeofenceID: ev.GeofenceID,
		Timestamp:  f.now().Unix(),
	})
}

func (f *DeviceFeedback) Stop(ctx context.Context) error {
	f.mu.Lock()
	tripID := f.tripID
	f.mu.Unlock()
	return f.pub.PublishFeedback(ctx, &domain.FeedbackCommand{
		Action:    domain.FeedbackStop,
		TripID:    tripID,
		Timestamp: f.now().Unix(),
	})
}

// BusNotifier publishes lifecycle events to the message bus.
type BusNotifier struct {
	pub    publisher.AlarmPublisher
	logger logrus.FieldLogger
}

func NewBusNotifier(pub publisher.AlarmPublisher, logger logrus.FieldLogger) *BusNotifier {
	return &BusNotifier{pub: pub, logger: logger.WithField("component", "bus_notifier")}
}

func (n *BusNotifier) Notify(ctx context.Context, ev domain.AlarmEvent) {
	if !ev.Lifecycle() {
		return
	}
	if err := n.pub.PublishEvent(ctx, &ev); err != nil {
		n.logger.WithError(err).WithField("event", ev.Type).Warn("publish alarm event failed")
	}
}

// CacheNotifier mirrors every event, position updates included.
type CacheNotifier struct {
	cache  cache.EventCache
	logger logrus.FieldLogger
}

func NewCacheNotifier(c cache.EventCache, logger logrus.FieldLogger) *CacheNotifier {
	return &CacheNotifier{cache: c, logger: logger.WithField("component", "cache_notifier")}
}

func (n *CacheNotifier) Notify(ctx context.Context, ev domain.AlarmEvent) {
	if err := n.cache.MirrorEvent(ctx, &ev); err != nil {
		n.logger.WithError(err).WithField("event", ev.Type).Debug("mirror alarm event failed")
	}
}
