package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionChannel is the Redis channel carrying session change notifications.
const SessionChannel = "auth:sessions"

// RedisNotifier broadcasts session changes to every gateway instance.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisNotifier creates a notifier on the given client.
func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, logger: logger}
}

// Publish sends one change.
func (n *RedisNotifier) Publish(ctx context.Context, ev SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return n.client.Publish(ctx, SessionChannel, body).Err()
}

// Listen delivers every change published by any instance to fn until ctx is done.
func (n *RedisNotifier) Listen(ctx context.Context, fn func(SessionEvent)) error {
	pubsub := n.client.Subscribe(ctx, SessionChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", SessionChannel, err)
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.logger.Debug("drop malformed session event", zap.Error(err))
					continue
				}
				fn(ev)
			}
		}
	}()
	return nil
}
