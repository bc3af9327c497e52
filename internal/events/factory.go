package events

import (
	"github.com/orchardops/orchard/internal/config"
	"github.com/orchardops/orchard/internal/errdefs"
)

// New creates the publisher selected by the configuration
func New(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Type {
	case "nats", "":
		return NewNATSPublisher(cfg)
	case "redis":
		return NewRedisPublisher(cfg)
	case "kafka":
		return NewKafkaPublisher(cfg)
	case "memory":
		return NewMemoryPublisher(), nil
	default:
		return nil, errdefs.Validation("unknown events backend %q", cfg.Type)
	}
}
