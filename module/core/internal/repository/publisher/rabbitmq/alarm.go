package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/publisher"
)

var _ publisher.AlarmPublisher = (*AlarmPublisher)(nil)

const (
	EventsExchange   = "trip.events"
	EventsQueue      = "alarm_events"
	FeedbackExchange = "trip.feedback"

	// a play command that sat in the queue this long is no longer wanted
	feedbackTTL = "30000"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type topology interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

type AlarmPublisher struct {
	ch       channel
	deviceID string
}

func NewAlarmPublisher(conn *amqp.Connection, deviceID string) (*AlarmPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &AlarmPublisher{ch: ch, deviceID: deviceID}, nil
}

// DeclareTopology sets up the event fanout with its durable queue and the
// direct exchange devices bind their own queues to.
func DeclareTopology(ch topology) error {
	if err := ch.ExchangeDeclare(EventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(EventsQueue, "", EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if err := ch.ExchangeDeclare(FeedbackExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

type eventMessage struct {
	ID             string                `json:"id"`
	TripID         string                `json:"trip_id"`
	Event          domain.AlarmEventType `json:"event"`
	State          domain.AlarmState     `json:"state"`
	GeofenceID     string                `json:"geofence_id,omitempty"`
	DistanceMeters *float64              `json:"distance_meters,omitempty"`
	Location       *eventLocation        `json:"location,omitempty"`
	Error          string                `json:"error,omitempty"`
	Timestamp      int64                 `json:"timestamp"`
}

type eventLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p *AlarmPublisher) PublishEvent(ctx context.Context, ev *domain.AlarmEvent) error {
	msg := eventMessage{
		ID:             ev.ID,
		TripID:         ev.TripID,
		Event:          ev.Type,
		State:          ev.State,
		GeofenceID:     ev.GeofenceID,
		DistanceMeters: ev.DistanceMeters,
		Error:          ev.Error,
		Timestamp:      ev.Timestamp.Unix(),
	}
	if ev.Location != nil {
		msg.Location = &eventLocation{Latitude: ev.Location.Latitude, Longitude: ev.Location.Longitude}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.ch.PublishWithContext(ctx, EventsExchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Body:         body,
	})
}

func (p *AlarmPublisher) PublishFeedback(ctx context.Context, cmd *domain.FeedbackCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	return p.ch.PublishWithContext(ctx, FeedbackExchange, p.deviceID, false, false, amqp.Publishing{
		ContentType: "application/json",
		Expiration:  feedbackTTL,
		Type:        string(cmd.Action),
		Body:        body,
	})
}
