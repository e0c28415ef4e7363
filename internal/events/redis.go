package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel events are published on.
const DefaultChannel = "blackjack:events"

// Redis publishes events as JSON on a Redis pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *log.Logger
}

// NewRedis connects to addr and checks the connection.
func NewRedis(ctx context.Context, addr, channel string, logger *log.Logger) (*Redis, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Redis{
		client:  client,
		channel: channel,
		logger:  logger.WithPrefix("redis"),
	}, nil
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Forward subscribes to the channel and hands every decoded event to dst
// until ctx is cancelled.
func (r *Redis) Forward(ctx context.Context, dst Publisher) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed before reporting ready
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("Subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.logger.Warn("Dropping malformed event", "error", err)
				continue
			}
			if err := dst.Publish(ctx, e); err != nil {
				r.logger.Warn("Forward failed", "game", e.GameID, "error", err)
			}
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
