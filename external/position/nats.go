package position

import (
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// NATSSource reads device position samples from a NATS subject
type NATSSource struct {
	*bus
	sub *nats.Subscription
}

// NewNATSSource subscribes to subject on an established connection. Fix
// requests are published on controlSubject when it is set.
func NewNATSSource(nc *nats.Conn, subject, controlSubject string) (*NATSSource, error) {
	if subject == "" {
		return nil, fmt.Errorf("empty position subject")
	}

	s := &NATSSource{}
	s.bus = newBus(func(data []byte) error {
		if controlSubject == "" {
			return nil
		}
		return nc.Publish(controlSubject, data)
	})

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		s.handle(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	s.sub = sub

	log.WithFields(log.Fields{
		"prefix":  logPrefix,
		"subject": subject,
	}).Info("subscribed to nats position subject")

	return s, nil
}

func (s *NATSSource) Close() error {
	return s.sub.Unsubscribe()
}
