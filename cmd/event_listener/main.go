package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/config"
)

const (
	exchangeName = "trip.events"
	queueName    = "alarm_events"
)

type alarmEvent struct {
	TripID         string   `json:"trip_id"`
	Event          string   `json:"event"`
	State          string   `json:"state"`
	GeofenceID     string   `json:"geofence_id"`
	DistanceMeters *float64 `json:"distance_meters"`
	Error          string   `json:"error"`
	Timestamp      int64    `json:"timestamp"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg)

	conn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		logger.Fatalf("rabbitmq: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatalf("rabbitmq channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		logger.Fatalf("declare exchange: %v", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		logger.Fatalf("declare queue: %v", err)
	}

	if err := ch.QueueBind(queueName, "", exchangeName, false, nil); err != nil {
		logger.Fatalf("bind queue: %v", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("queue", queueName).Info("waiting for alarm events")

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				return
			}
			var ev alarmEvent
			if err := json.Unmarshal(msg.Body, &ev); err != nil {
				logger.WithError(err).Warn("discarding malformed event")
				_ = msg.Nack(false, false)
				continue
			}
			entry := logger.WithFields(logrus.Fields{
				"trip_id":     ev.TripID,
				"state":       ev.State,
				"geofence_id": ev.GeofenceID,
				"timestamp":   ev.Timestamp,
			})
			if ev.DistanceMeters != nil {
				entry = entry.WithField("distance_meters", *ev.DistanceMeters)
			}
			if ev.Error != "" {
				entry = entry.WithField("error", ev.Error)
			}
			entry.Info(ev.Event)
			_ = msg.Ack(false)
		}
	}
}
