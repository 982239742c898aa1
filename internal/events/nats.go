package events

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "veriview"

// NATSPublisher forwards events to downstream consumers on
// veriview.<kind>.<event type>.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func Subject(e Event) string {
	return strings.Join([]string{subjectPrefix, string(e.Kind), e.Type}, ".")
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := e.Encode()
	if err != nil {
		return err
	}
	msg := nats.NewMsg(Subject(e))
	msg.Header.Set("Session-Id", e.SessionID)
	msg.Data = b
	return p.nc.PublishMsg(msg)
}
