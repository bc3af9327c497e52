package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/orchardops/orchard/internal/config"
	"github.com/orchardops/orchard/internal/errdefs"
)

// Subject carrying every orchestrator event on NATS
const natsSubject = "orchard.events"

// NATSPublisher publishes events to a NATS subject
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the configured NATS server
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("orchard-orchestrator"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errdefs.IO("failed to connect to NATS at %s", cfg.URL).WithCause(err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish sends the event as JSON
func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errdefs.Internal("failed to encode event").WithCause(err)
	}
	if err := p.conn.Publish(natsSubject, data); err != nil {
		return errdefs.IO("failed to publish event").WithCause(err)
	}
	return nil
}

// Close flushes pending events and drops the connection
func (p *NATSPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		p.conn.Close()
		return err
	}
	p.conn.Close()
	return nil
}
