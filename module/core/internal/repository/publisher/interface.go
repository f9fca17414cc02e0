package publisher

import (
	"context"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

// AlarmPublisher pushes alarm events to the bus and feedback commands to the
// device.
type AlarmPublisher interface {
	PublishEvent(ctx context.Context, ev *domain.AlarmEvent) error
	PublishFeedback(ctx context.Context, cmd *domain.FeedbackCommand) error
}
