package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// BrokerConnect dials the NATS server at url with the reconnect policy used
// by every publisher in this service.
func BrokerConnect(url, name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logrus.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	}
	return nats.Connect(url, opts...)
}

// BoardPublisher publishes board updates on <prefix>.<matchID>.
type BoardPublisher struct {
	Conn   *nats.Conn
	Prefix string
}

func NewBoardPublisher(nc *nats.Conn, prefix string) *BoardPublisher {
	return &BoardPublisher{Conn: nc, Prefix: prefix}
}

// Subject returns the subject updates for matchID are published on.
func (p *BoardPublisher) Subject(matchID string) string {
	return BoardSubject(p.Prefix, matchID)
}

func BoardSubject(prefix, matchID string) string {
	if prefix == "" {
		return matchID
	}
	return prefix + "." + matchID
}

// Publish encodes v as JSON and sends it without waiting for an ack.
func (p *BoardPublisher) Publish(matchID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode board update: %w", err)
	}
	if err := p.Conn.Publish(p.Subject(matchID), data); err != nil {
		return fmt.Errorf("failed to publish board update: %w", err)
	}
	return nil
}

func (p *BoardPublisher) Close() {
	if p.Conn != nil {
		p.Conn.Close()
	}
}
