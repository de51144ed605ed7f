package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"oracleguard/internal/config"
	"oracleguard/internal/model"
)

const (
	alertKeyPrefix = "alert:"
	recencyKey     = "alerts:all"
)

// RedisStore is the hot alert store: each alert lives under alert:<id>
// with a retention TTL, and its id is pushed onto a capped recency index.
type RedisStore struct {
	client     *redis.Client
	retention  time.Duration
	indexLimit int64
	logger     zerolog.Logger
}

func NewRedisStore(client *redis.Client, cfg config.StoreConfig, logger zerolog.Logger) *RedisStore {
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	limit := int64(cfg.IndexLimit)
	if limit <= 0 {
		limit = 10000
	}
	return &RedisStore{
		client:     client,
		retention:  retention,
		indexLimit: limit,
		logger:     logger.With().Str("component", "alert_store").Logger(),
	}
}

// Store persists the alert and appends it to the recency index, trimming
// the index to its cap.
func (s *RedisStore) Store(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", alert.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, alertKeyPrefix+alert.ID, payload, s.retention)
	pipe.LPush(ctx, recencyKey, alert.ID)
	pipe.LTrim(ctx, recencyKey, 0, s.indexLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store alert %s: %w", alert.ID, err)
	}

	s.logger.Debug().Str("alert_id", alert.ID).Msg("alert stored")
	return nil
}

// GetRecent returns up to limit alerts, newest first, optionally filtered
// by feed name. Ids whose alert key already expired are skipped.
func (s *RedisStore) GetRecent(ctx context.Context, limit int, feed string) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	out := make([]model.Alert, 0, limit)
	const batch = 200
	for start := int64(0); start < s.indexLimit && len(out) < limit; start += batch {
		ids, err := s.client.LRange(ctx, recencyKey, start, start+batch-1).Result()
		if err != nil {
			return nil, fmt.Errorf("read recency index: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = alertKeyPrefix + id
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("read alerts: %w", err)
		}

		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var alert model.Alert
			if err := json.Unmarshal([]byte(raw), &alert); err != nil {
				s.logger.Warn().Err(err).Msg("skipping undecodable stored alert")
				continue
			}
			if feed != "" && alert.FeedName != feed {
				continue
			}
			out = append(out, alert)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Get fetches one alert by id.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Alert, bool, error) {
	raw, err := s.client.Get(ctx, alertKeyPrefix+id).Result()
	if err == redis.Nil {
		return model.Alert{}, false, nil
	}
	if err != nil {
		return model.Alert{}, false, fmt.Errorf("read alert %s: %w", id, err)
	}
	var alert model.Alert
	if err := json.Unmarshal([]byte(raw), &alert); err != nil {
		return model.Alert{}, false, fmt.Errorf("decode alert %s: %w", id, err)
	}
	return alert, true, nil
}
