package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/config"
	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/geo"
)

type locationMessage struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type sink func(ctx context.Context, payload []byte) error

func main() {
	interval := flag.Duration("interval", 2*time.Second, "time between fixes")
	step := flag.Float64("step", 150, "meters travelled per fix")
	fromLat := flag.Float64("from-lat", 12.9352, "start latitude")
	fromLon := flag.Float64("from-lon", 77.6245, "start longitude")
	toLat := flag.Float64("to-lat", 12.9716, "destination latitude")
	toLon := flag.Float64("to-lon", 77.5946, "destination longitude")
	flag.Parse()

	if *interval <= 0 || *step <= 0 {
		fmt.Fprintln(os.Stderr, "error: interval and step must be positive")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	cfg.MQTTClientID = "trip-device-" + cfg.DeviceID
	logger := config.NewLogger(cfg)

	var send sink
	switch cfg.LocationTransport {
	case config.TransportKafka:
		w := config.NewKafkaWriter(cfg)
		defer func() { _ = w.Close() }()
		send = func(ctx context.Context, payload []byte) error {
			return w.WriteMessages(ctx, kafka.Message{Key: []byte(cfg.DeviceID), Value: payload})
		}
	default:
		client, err := config.NewMQTT(cfg, logger, nil)
		if err != nil {
			logger.Fatalf("mqtt: %v", err)
		}
		defer client.Disconnect(250)
		topic := fmt.Sprintf("/trip/device/%s/location", cfg.DeviceID)
		send = func(_ context.Context, payload []byte) error {
			token := client.Publish(topic, 1, false, payload)
			token.Wait()
			return token.Error()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pos := domain.Coordinate{Latitude: *fromLat, Longitude: *fromLon}
	dest := domain.Coordinate{Latitude: *toLat, Longitude: *toLon}

	logger.WithFields(logrus.Fields{
		"device":    cfg.DeviceID,
		"transport": cfg.LocationTransport,
		"distance":  geo.DistanceMeters(pos, dest),
	}).Info("simulating trip")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		msg := locationMessage{
			DeviceID:  cfg.DeviceID,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Accuracy:  5 + rand.Float64()*10,
			Timestamp: time.Now().Unix(),
		}
		payload, _ := json.Marshal(msg)
		if err := send(ctx, payload); err != nil {
			logger.WithError(err).Warn("publish failed")
		} else {
			logger.WithField("remaining", geo.DistanceMeters(pos, dest)).Info("published fix")
		}

		if pos == dest {
			logger.Info("arrived")
			return
		}
		pos = advance(pos, dest, *step)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// advance moves from toward to by at most meters along the straight line in
// degree space. Good enough at city scale.
func advance(from, to domain.Coordinate, meters float64) domain.Coordinate {
	remaining := geo.DistanceMeters(from, to)
	if remaining <= meters {
		return to
	}
	f := meters / remaining
	return domain.Coordinate{
		Latitude:  from.Latitude + (to.Latitude-from.Latitude)*f,
		Longitude: from.Longitude + (to.Longitude-from.Longitude)*f,
	}
}
