package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"oracleguard/internal/model"
)

// RedisNotifier publishes the full alert JSON on a pub/sub channel. It is
// the primary downstream integration point and is always registered,
// whatever other channels are configured.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "redis_notifier").Logger(),
	}
}

func (n *RedisNotifier) Name() string { return "redis" }

func (n *RedisNotifier) Notify(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.channel, err)
	}
	n.logger.Debug().Str("alert_id", alert.ID).Str("channel", n.channel).Msg("alert published")
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
