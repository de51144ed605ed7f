package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"oracleguard/internal/config"
	"oracleguard/internal/model"
)

// Handler receives decoded feed events from an ingest source.
type Handler interface {
	HandleEvent(ctx context.Context, ev model.FeedEvent) []model.Alert
}

// StartKafka consumes feed events from a Kafka topic as an alternate
// transport next to the Redis bus. Messages carry the same FeedEvent
// JSON. The reader runs until ctx is cancelled.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, handler Handler, logger zerolog.Logger) {
	if !cfg.Enabled {
		logger.Info().Msg("kafka ingest disabled")
		return
	}
	log := logger.With().Str("component", "kafka_ingest").Logger()
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Str("group_id", cfg.GroupID).Msg("kafka ingest enabled")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("kafka read error")
				if !BackoffSleep(ctx, 200*time.Millisecond) {
					return
				}
				continue
			}
			var ev model.FeedEvent
			if err := json.Unmarshal(m.Value, &ev); err != nil {
				log.Warn().Err(err).Msg("dropping undecodable kafka message")
				continue
			}
			ev.Source = "kafka"
			handler.HandleEvent(ctx, ev)
		}
	}()
}
