package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	handler "github.com/nandanugg/trip-alarm/module/core/internal/handler/http"
	"github.com/nandanugg/trip-alarm/module/core/internal/handler/subscriber"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/cache/redis"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/database/postgres"
	"github.com/nandanugg/trip-alarm/module/core/internal/repository/publisher/rabbitmq"
	"github.com/nandanugg/trip-alarm/module/core/service"
	"github.com/nandanugg/trip-alarm/module/core/tracking"
)

// ConnectionEvents reports MQTT client reconnects and connection losses.
type ConnectionEvents interface {
	OnConnect(fn func())
	OnConnectionLost(fn func(error))
}

// Deps carries the connections and settings the core module is built from.
// Exactly one of MQTT or NewKafkaReader must be set. Redis and MQTTEvents
// are optional.
type Deps struct {
	DB         *sql.DB
	AMQP       *amqp.Connection
	MQTT       mqtt.Client
	MQTTEvents ConnectionEvents
	Redis      *goredis.Client
	Logger   logrus.FieldLogger
	DeviceID string

	// NewKafkaReader opens a fresh reader each time tracking starts.
	NewKafkaReader func() *kafka.Reader

	SnoozeDelay         time.Duration
	FeedbackRepeat      time.Duration
	TrackingMinDistance float64
	TrackingMinInterval time.Duration
}

type Module struct {
	Alarms  *service.AlarmManager
	TripSvc *service.TripService
	handler *handler.TripHandler
	hub     *handler.Hub
	source  tracking.Source
}

func Build(deps Deps) (*Module, error) {
	logger := deps.Logger
	throttle := tracking.NewThrottle(deps.TrackingMinDistance, deps.TrackingMinInterval)

	var source tracking.Source
	switch {
	case deps.MQTT != nil:
		src := subscriber.NewMQTTSource(deps.MQTT, deps.DeviceID, throttle, logger)
		if deps.MQTTEvents != nil {
			watchConnection(deps.MQTTEvents, src)
		}
		source = src
	case deps.NewKafkaReader != nil:
		source = subscriber.NewKafkaSource(kafkaReaders(deps.NewKafkaReader), deps.DeviceID, throttle, logger)
	default:
		return nil, fmt.Errorf("core module: no location transport configured")
	}

	alarmPub, err := rabbitmq.NewAlarmPublisher(deps.AMQP, deps.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("alarm publisher: %w", err)
	}

	tripRepo := postgres.NewTripRepo(deps.DB)
	hub := handler.NewHub(logger)

	notifiers := []service.Notifier{
		service.NewEventRecorder(tripRepo, logger),
		service.NewBusNotifier(alarmPub, logger),
		hub,
	}
	if deps.Redis != nil {
		notifiers = append(notifiers, service.NewCacheNotifier(redis.NewEventMirror(deps.Redis), logger))
	}

	feedback := service.NewRepeatingFeedback(service.NewDeviceFeedback(alarmPub), deps.FeedbackRepeat, logger)
	alarms := service.NewAlarmManager(
		service.NewTripSessionStore(),
		source,
		feedback,
		service.AlarmConfig{SnoozeDelay: deps.SnoozeDelay},
		logger,
		notifiers...,
	)
	tripSvc := service.NewTripService(tripRepo, alarms, logger)

	return &Module{
		Alarms:  alarms,
		TripSvc: tripSvc,
		handler: handler.NewTripHandler(tripSvc, hub),
		hub:     hub,
		source:  source,
	}, nil
}

func watchConnection(events ConnectionEvents, src *subscriber.MQTTSource) {
	events.OnConnect(src.Reconnected)
	events.OnConnectionLost(src.ConnectionLost)
}

// kafkaReaders keeps a nil *kafka.Reader a nil MessageReader.
func kafkaReaders(open func() *kafka.Reader) func() subscriber.MessageReader {
	return func() subscriber.MessageReader {
		if r := open(); r != nil {
			return r
		}
		return nil
	}
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

// Run drives the alarm manager until ctx is cancelled.
func (m *Module) Run(ctx context.Context) error {
	return m.Alarms.Run(ctx)
}

// Close disconnects stream clients. Call it after Run has returned.
func (m *Module) Close() {
	m.hub.Close()
	m.source.Stop()
}
