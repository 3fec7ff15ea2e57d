package position

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const mqttQuiesce = 250

type MQTTConfig struct {
	Broker       string
	ClientID     string
	Topic        string
	ControlTopic string
}

// MQTTSource reads device position samples from an MQTT topic
type MQTTSource struct {
	*bus
	client mqtt.Client
	topic  string
}

// NewMQTTSource connects to the broker and subscribes to the position topic
func NewMQTTSource(cfg MQTTConfig) (*MQTTSource, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("empty position topic")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("geoquest-agent-%d", time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	s := &MQTTSource{
		client: client,
		topic:  cfg.Topic,
	}
	s.bus = newBus(func(data []byte) error {
		if cfg.ControlTopic == "" {
			return nil
		}
		token := client.Publish(cfg.ControlTopic, 1, false, data)
		token.Wait()
		return token.Error()
	})

	token := client.Subscribe(cfg.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		client.Disconnect(mqttQuiesce)
		return nil, token.Error()
	}

	log.WithFields(log.Fields{
		"prefix": logPrefix,
		"broker": cfg.Broker,
		"topic":  cfg.Topic,
	}).Info("subscribed to mqtt position topic")

	return s, nil
}

func (s *MQTTSource) Close() error {
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		log.WithField("prefix", logPrefix).WithError(token.Error()).Warn("unsubscribe position topic")
	}
	s.client.Disconnect(mqttQuiesce)
	return nil
}
