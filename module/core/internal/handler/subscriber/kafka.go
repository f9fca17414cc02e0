package subscriber

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/tracking"
)

var _ tracking.Source = (*KafkaSource)(nil)

// MessageReader is the part of *kafka.Reader the source uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource streams one device's fixes from a shared location topic keyed
// by device id. Every Start opens a fresh reader.
type KafkaSource struct {
	newReader func() MessageReader
	deviceID  string
	throttle  *tracking.Throttle
	logger    logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewKafkaSource(newReader func() MessageReader, deviceID string, throttle *tracking.Throttle, logger logrus.FieldLogger) *KafkaSource {
	return &KafkaSource{
		newReader: newReader,
		deviceID:  deviceID,
		throttle:  throttle,
		logger:    logger.WithFields(logrus.Fields{"component": "kafka_source", "device_id": deviceID}),
	}
}

func (s *KafkaSource) Start(ctx context.Context) (<-chan tracking.Update, error) {
	s.Stop()
	if s.throttle != nil {
		s.throttle.Reset()
	}

	reader := s.newReader()
	if reader == nil {
		return nil, fmt.Errorf("%w: no kafka reader", domain.ErrTrackingUnavailable)
	}

	runCtx, cancel := context.WithCancel(ctx)
	st := tracking.NewStream(streamBuffer)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.consume(runCtx, reader, st, done)
	s.logger.Info("location tracking started")
	return st.C(), nil
}

// Stop returns once the consumer has exited and its reader is closed.
func (s *KafkaSource) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("location tracking stopped")
}

func (s *KafkaSource) consume(ctx context.Context, reader MessageReader, st *tracking.Stream, done chan struct{}) {
	defer close(done)
	defer st.Close()
	defer func() {
		if err := reader.Close(); err != nil {
			s.logger.WithError(err).Warn("kafka reader close failed")
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			st.Close()
		case <-st.Done():
		}
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			st.Send(tracking.Update{Err: fmt.Errorf("%w: kafka fetch: %v", domain.ErrTrackingUnavailable, err)})
			return
		}

		if terminal := s.handle(msg, st); terminal {
			_ = reader.CommitMessages(ctx, msg)
			return
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("kafka commit failed")
		}
	}
}

// handle forwards one message and reports whether it ended the stream.
func (s *KafkaSource) handle(msg kafka.Message, st *tracking.Stream) bool {
	if len(msg.Key) > 0 && string(msg.Key) != s.deviceID {
		return false
	}

	deviceID, u, err := decodeUpdate(msg.Value)
	if err != nil {
		s.logger.WithError(err).WithField("offset", msg.Offset).Warn("dropping location message")
		return false
	}
	if deviceID != s.deviceID {
		return false
	}
	if u.Err == nil && s.throttle != nil && !s.throttle.Allow(u.Sample) {
		return false
	}

	if !st.Send(u) {
		return true
	}
	return u.Err != nil && !domain.IsTransient(u.Err)
}
