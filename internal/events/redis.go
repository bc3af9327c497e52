package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orchardops/orchard/internal/config"
	"github.com/orchardops/orchard/internal/errdefs"
)

// RedisPublisher appends events to a Redis stream
type RedisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisPublisher connects to the configured Redis server
func NewRedisPublisher(cfg config.EventsConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errdefs.IO("failed to connect to Redis at %s", cfg.URL).WithCause(err)
	}

	stream := cfg.RedisStream
	if stream == "" {
		stream = "orchard:events"
	}
	return &RedisPublisher{client: client, stream: stream}, nil
}

// Publish appends the event to the stream with XADD
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errdefs.Internal("failed to encode event").WithCause(err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":    event.Type,
			"payload": string(data),
		},
	}).Err()
	if err != nil {
		return errdefs.IO("failed to publish event to stream %s", p.stream).WithCause(err)
	}
	return nil
}

// Close releases the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
