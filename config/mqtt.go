package config

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTEvents fans the client's connection callbacks out to listeners that are
// registered after the client exists. paho runs both callbacks on their own
// goroutines.
type MQTTEvents struct {
	mu     sync.Mutex
	onConn []func()
	onLost []func(error)
}

func (e *MQTTEvents) OnConnect(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onConn = append(e.onConn, fn)
}

func (e *MQTTEvents) OnConnectionLost(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLost = append(e.onLost, fn)
}

func (e *MQTTEvents) connected() {
	e.mu.Lock()
	fns := append([]func(){}, e.onConn...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *MQTTEvents) lost(err error) {
	e.mu.Lock()
	fns := append([]func(error){}, e.onLost...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// NewMQTT connects with auto-reconnect. events may be nil.
func NewMQTT(cfg *Config, logger logrus.FieldLogger, events *MQTTEvents) (mqtt.Client, error) {
	if events == nil {
		events = &MQTTEvents{}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("mqtt connection lost")
			events.lost(err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.WithField("broker", cfg.MQTTBroker).Info("mqtt connected")
			events.connected()
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}
