package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/config"
	"github.com/nandanugg/trip-alarm/module/core"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg)

	db, err := config.NewPostgres(cfg)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer func() { _ = db.Close() }()

	amqpConn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		logger.Fatalf("rabbitmq: %v", err)
	}
	defer func() { _ = amqpConn.Close() }()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = config.NewRedis(cfg)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer func() { _ = rdb.Close() }()
	}

	deps := core.Deps{
		DB:                  db,
		AMQP:                amqpConn,
		Redis:               rdb,
		Logger:              logger,
		DeviceID:            cfg.DeviceID,
		SnoozeDelay:         cfg.SnoozeDelay,
		FeedbackRepeat:      cfg.FeedbackRepeat,
		TrackingMinDistance: cfg.TrackingMinDistance,
		TrackingMinInterval: cfg.TrackingMinInterval,
	}

	switch cfg.LocationTransport {
	case config.TransportKafka:
		deps.NewKafkaReader = func() *kafka.Reader { return config.NewKafkaReader(cfg) }
	default:
		events := &config.MQTTEvents{}
		mqttClient, err := config.NewMQTT(cfg, logger, events)
		if err != nil {
			logger.Fatalf("mqtt: %v", err)
		}
		defer mqttClient.Disconnect(250)
		deps.MQTT = mqttClient
		deps.MQTTEvents = events
	}

	coreModule, err := core.Build(deps)
	if err != nil {
		logger.Fatalf("core module: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- coreModule.Run(ctx) }()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	health := config.NewHealthChecker(db, amqpConn, deps.MQTT, rdb)
	health.Register(r)

	coreModule.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	err = <-runErr
	coreModule.Close()
	if err != nil {
		logger.WithError(err).Error("alarm manager")
		os.Exit(1)
	}
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}
