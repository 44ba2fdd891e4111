package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the slice of the go-redis client used for fan-out.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher forwards change events as JSON on a Redis channel.
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher builds a publisher for the given channel.
func NewRedisPublisher(client Publisher, channel string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Attach subscribes the publisher to every event type on the dispatcher.
func (p *RedisPublisher) Attach(d Dispatcher) {
	for _, t := range AllEventTypes {
		d.Subscribe(t, p.Handle)
	}
}

// Handle publishes one event.
func (p *RedisPublisher) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.logger.Debug("event published", zap.String("event_type", string(event.Type)), zap.String("channel", p.channel))
	return nil
}
