package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/trip-alarm/module/core/domain"
	"github.com/nandanugg/trip-alarm/module/core/tracking"
)

type fakeToken struct {
	mqtt.Token
	err error
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Error() error                     { return t.err }

type fakeMQTTClient struct {
	mqtt.Client

	mu           sync.Mutex
	handler      mqtt.MessageHandler
	subscribed   []string
	unsubscribed []string
	subscribeErr error
}

func (c *fakeMQTTClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return &fakeToken{err: c.subscribeErr}
	}
	c.subscribed = append(c.subscribed, topic)
	c.handler = callback
	return &fakeToken{}
}

func (c *fakeMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &fakeToken{}
}

func (c *fakeMQTTClient) unsubscribes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unsubscribed)
}

func (c *fakeMQTTClient) deliver(payload []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(c, &fakeMQTTMessage{payload: payload})
}

type fakeMQTTMessage struct {
	payload []byte
}

func (f *fakeMQTTMessage) Duplicate() bool   { return false }
func (f *fakeMQTTMessage) Qos() byte         { return 1 }
func (f *fakeMQTTMessage) Retained() bool    { return false }
func (f *fakeMQTTMessage) Topic() string     { return "/trip/device/phone-1/location" }
func (f *fakeMQTTMessage) MessageID() uint16 { return 0 }
func (f *fakeMQTTMessage) Payload() []byte   { return f.payload }
func (f *fakeMQTTMessage) Ack()              {}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func payloadOf(t *testing.T, msg LocationMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func receive(t *testing.T, ch <-chan tracking.Update) tracking.Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "stream closed")
		return u
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return tracking.Update{}
	}
}

func TestMQTTSource_DeliversSamples(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()
	assert.Equal(t, []string{"/trip/device/phone-1/location"}, client.subscribed)

	client.deliver(payloadOf(t, LocationMessage{
		DeviceID: "phone-1", Latitude: 12.9716, Longitude: 77.5946, Accuracy: 8, Timestamp: 1715003456,
	}))

	u := receive(t, ch)
	require.NoError(t, u.Err)
	assert.Equal(t, 12.9716, u.Sample.Coordinate.Latitude)
	assert.Equal(t, 8.0, u.Sample.AccuracyMeters)
	assert.True(t, u.Sample.Timestamp.Equal(time.Unix(1715003456, 0)))
}

func TestMQTTSource_DropsInvalidAndForeignMessages(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	client.deliver([]byte("not json"))
	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 95, Timestamp: 1}))
	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-2", Latitude: 1, Timestamp: 1}))
	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 2, Timestamp: 1}))

	u := receive(t, ch)
	assert.Equal(t, 2.0, u.Sample.Coordinate.Latitude)
}

func TestMQTTSource_Throttles(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", tracking.NewThrottle(50, time.Minute), testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 12.9716, Longitude: 77.5946, Timestamp: 100}))
	// a few meters away and a second later
	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 12.97161, Longitude: 77.5946, Timestamp: 101}))
	// roughly 111m further south
	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 12.9706, Longitude: 77.5946, Timestamp: 102}))

	assert.Equal(t, 12.9716, receive(t, ch).Sample.Coordinate.Latitude)
	assert.Equal(t, 12.9706, receive(t, ch).Sample.Coordinate.Latitude)
}

func TestMQTTSource_DeviceStatus(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)

	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Status: statusSignalLost}))
	assert.ErrorIs(t, receive(t, ch).Err, domain.ErrSignalLost)

	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Status: statusPermissionDenied}))
	assert.ErrorIs(t, receive(t, ch).Err, domain.ErrPermissionDenied)

	_, ok := <-ch
	assert.False(t, ok, "terminal error ends the stream")

	src.Stop()
	assert.Equal(t, 1, client.unsubscribes())
}

func TestMQTTSource_SubscribeFailure(t *testing.T) {
	client := &fakeMQTTClient{subscribeErr: errors.New("not connected")}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	_, err := src.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrTrackingUnavailable)

	src.Stop()
	assert.Zero(t, client.unsubscribes())
}

func TestMQTTSource_StopIsIdempotent(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)

	src.Stop()
	src.Stop()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 1, client.unsubscribes())

	// messages after stop go nowhere
	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 1, Timestamp: 1}))
}

func TestMQTTSource_ContextCancel(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Start(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed on cancel")
	}
	assert.Eventually(t, func() bool { return client.unsubscribes() == 1 }, time.Second, time.Millisecond)
}

func TestValidateLocationMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     LocationMessage
		wantErr bool
	}{
		{"valid", LocationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: 1}, false},
		{"empty device_id", LocationMessage{Latitude: 0, Longitude: 0, Timestamp: 1}, true},
		{"lat too low", LocationMessage{DeviceID: "X", Latitude: -91, Longitude: 0, Timestamp: 1}, true},
		{"lat too high", LocationMessage{DeviceID: "X", Latitude: 91, Longitude: 0, Timestamp: 1}, true},
		{"lon too low", LocationMessage{DeviceID: "X", Latitude: 0, Longitude: -181, Timestamp: 1}, true},
		{"lon too high", LocationMessage{DeviceID: "X", Latitude: 0, Longitude: 181, Timestamp: 1}, true},
		{"negative accuracy", LocationMessage{DeviceID: "X", Accuracy: -1, Timestamp: 1}, true},
		{"zero timestamp", LocationMessage{DeviceID: "X", Latitude: 0, Longitude: 0, Timestamp: 0}, true},
		{"status without fix", LocationMessage{DeviceID: "X", Status: statusSignalLost}, false},
		{"unknown status", LocationMessage{DeviceID: "X", Status: "asleep", Timestamp: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLocationMessage(&tt.msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateLocationMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMQTTSource_ConnectionLostEndsStream(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)

	src.ConnectionLost(errors.New("broker went away"))

	u := receive(t, ch)
	assert.ErrorIs(t, u.Err, domain.ErrTrackingUnavailable)
	assert.Contains(t, u.Err.Error(), "broker went away")
	_, ok := <-ch
	assert.False(t, ok)

	src.Stop()
	assert.Zero(t, client.unsubscribes(), "no unsubscribe on a dead connection")

	// a reconnect without a live stream must not subscribe again
	src.Reconnected()
	client.mu.Lock()
	assert.Len(t, client.subscribed, 1)
	client.mu.Unlock()

	ch, err = src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()
	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 1, Longitude: 2, Timestamp: 1}))
	assert.Equal(t, 1.0, receive(t, ch).Sample.Coordinate.Latitude)
}

func TestMQTTSource_ReconnectResubscribes(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	src.Reconnected()

	client.mu.Lock()
	assert.Equal(t, []string{Topic("phone-1"), Topic("phone-1")}, client.subscribed)
	client.mu.Unlock()

	client.deliver(payloadOf(t, LocationMessage{DeviceID: "phone-1", Latitude: 5, Longitude: 6, Timestamp: 1}))
	assert.Equal(t, 5.0, receive(t, ch).Sample.Coordinate.Latitude)
}

func TestMQTTSource_ResubscribeFailureEndsStream(t *testing.T) {
	client := &fakeMQTTClient{}
	src := NewMQTTSource(client, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)

	client.mu.Lock()
	client.subscribeErr = errors.New("not authorized")
	client.mu.Unlock()
	src.Reconnected()

	assert.ErrorIs(t, receive(t, ch).Err, domain.ErrTrackingUnavailable)
	_, ok := <-ch
	assert.False(t, ok)
	src.Stop()
}
