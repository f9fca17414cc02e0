package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/cache"
)

var _ cache.EventCache = (*EventMirror)(nil)

const (
	EventsChannel = "tripalarm:events"
	lastEventTTL  = 24 * time.Hour
)

type client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type EventMirror struct {
	rdb client
}

func NewEventMirror(rdb *redis.Client) *EventMirror {
	return &EventMirror{rdb: rdb}
}

func LastEventKey(tripID string) string {
	return "tripalarm:session:" + tripID + ":last_event"
}

func (m *EventMirror) MirrorEvent(ctx context.Context, ev *domain.AlarmEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := m.rdb.Set(ctx, LastEventKey(ev.TripID), data, lastEventTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := m.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
