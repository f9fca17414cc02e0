package cache

import (
	"context"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

// EventCache keeps the latest event per trip for readers outside this
// process and fans events out to live subscribers.
type EventCache interface {
	MirrorEvent(ctx context.Context, ev *domain.AlarmEvent) error
}
