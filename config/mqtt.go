package config

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// OnlineSignal fans the broker "connection restored" event out to listeners
// registered after the client is built.
type OnlineSignal struct {
	mu        sync.Mutex
	listeners []func()
}

func (s *OnlineSignal) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *OnlineSignal) fire() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func NewMQTT(cfg *Config, log logrus.FieldLogger, online *OnlineSignal) (mqtt.Client, error) {
	log = log.WithField("component", "mqtt")
	var connectedOnce atomic.Bool

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			// The first connect is startup, not a recovery.
			if !connectedOnce.CompareAndSwap(false, true) {
				log.Info("mqtt connection restored")
				if online != nil {
					online.fire()
				}
			}
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}
