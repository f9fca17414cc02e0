package subscriber

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/tracking"
)

const (
	streamBuffer     = 32
	subscribeTimeout = 10 * time.Second
)

var _ tracking.Source = (*MQTTSource)(nil)

func Topic(deviceID string) string {
	return "/trip/device/" + deviceID + "/location"
}

// MQTTSource streams one device's fixes from its location topic. It is
// subscribed only between Start and Stop.
type MQTTSource struct {
	client   mqtt.Client
	deviceID string
	throttle *tracking.Throttle
	logger   logrus.FieldLogger

	mu     sync.Mutex
	stream *tracking.Stream
}

func NewMQTTSource(client mqtt.Client, deviceID string, throttle *tracking.Throttle, logger logrus.FieldLogger) *MQTTSource {
	return &MQTTSource{
		client:   client,
		deviceID: deviceID,
		throttle: throttle,
		logger:   logger.WithFields(logrus.Fields{"component": "mqtt_source", "device_id": deviceID}),
	}
}

func (s *MQTTSource) Start(ctx context.Context) (<-chan tracking.Update, error) {
	s.Stop()
	if s.throttle != nil {
		s.throttle.Reset()
	}

	st := tracking.NewStream(streamBuffer)
	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()

	token := s.client.Subscribe(Topic(s.deviceID), 1, s.handleMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		s.detach(st, false)
		return nil, fmt.Errorf("%w: mqtt subscribe timed out", domain.ErrTrackingUnavailable)
	}
	if err := token.Error(); err != nil {
		s.detach(st, false)
		return nil, fmt.Errorf("%w: mqtt subscribe: %v", domain.ErrTrackingUnavailable, err)
	}
	s.logger.WithField("topic", Topic(s.deviceID)).Info("location tracking started")

	go func() {
		select {
		case <-ctx.Done():
			s.detach(st, true)
		case <-st.Done():
		}
	}()
	return st.C(), nil
}

func (s *MQTTSource) Stop() {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st != nil {
		s.detach(st, true)
	}
}

// detach closes st and, if it is still the live stream, drops the
// subscription.
func (s *MQTTSource) detach(st *tracking.Stream, unsubscribe bool) {
	s.mu.Lock()
	live := s.stream == st
	if live {
		s.stream = nil
	}
	s.mu.Unlock()

	st.Close()
	if !live || !unsubscribe {
		return
	}
	token := s.client.Unsubscribe(Topic(s.deviceID))
	if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
		s.logger.WithError(token.Error()).Warn("mqtt unsubscribe failed")
		return
	}
	s.logger.Info("location tracking stopped")
}

// ConnectionLost ends the live stream with ErrTrackingUnavailable. The broker
// drops the subscription with the connection, so tracking resumes only
// through a new Start.
func (s *MQTTSource) ConnectionLost(err error) {
	st := s.current()
	if st == nil {
		return
	}
	s.logger.WithError(err).Warn("mqtt connection lost, location tracking interrupted")
	s.fail(st, fmt.Errorf("%w: mqtt connection lost: %v", domain.ErrTrackingUnavailable, err))
}

// Reconnected restores the subscription of a stream that is still live after
// the client reconnects with a clean session.
func (s *MQTTSource) Reconnected() {
	st := s.current()
	if st == nil {
		return
	}

	token := s.client.Subscribe(Topic(s.deviceID), 1, s.handleMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		s.fail(st, fmt.Errorf("%w: mqtt resubscribe timed out", domain.ErrTrackingUnavailable))
		return
	}
	if err := token.Error(); err != nil {
		s.fail(st, fmt.Errorf("%w: mqtt resubscribe: %v", domain.ErrTrackingUnavailable, err))
		return
	}
	s.logger.WithField("topic", Topic(s.deviceID)).Info("location tracking resubscribed")
}

func (s *MQTTSource) fail(st *tracking.Stream, err error) {
	st.Send(tracking.Update{Err: err})
	s.detach(st, false)
}

func (s *MQTTSource) current() *tracking.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	st := s.current()
	if st == nil {
		return
	}

	deviceID, u, err := decodeUpdate(msg.Payload())
	if err != nil {
		s.logger.WithError(err).WithField("topic", msg.Topic()).Warn("dropping location message")
		return
	}
	if deviceID != s.deviceID {
		s.logger.WithField("from", deviceID).Debug("location for another device")
		return
	}
	if u.Err == nil && s.throttle != nil && !s.throttle.Allow(u.Sample) {
		return
	}

	st.Send(u)
	if u.Err != nil && !domain.IsTransient(u.Err) {
		// Stop drops the subscription; Unsubscribe must not run inside a handler
		st.Close()
	}
}
