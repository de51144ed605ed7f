package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"oracleguard/internal/alerts"
	"oracleguard/internal/api"
	"oracleguard/internal/bus"
	"oracleguard/internal/config"
	"oracleguard/internal/detector"
	"oracleguard/internal/engine"
	"oracleguard/internal/ingest"
	"oracleguard/internal/logging"
	"oracleguard/internal/notify"
	"oracleguard/internal/scorer"
	"oracleguard/internal/storage"
)

// Run assembles the pipeline from the config at configPath and blocks
// until shutdown. A dropped bus subscription is fatal and surfaces as an
// error so the supervisor restarts the process.
func Run(ctx context.Context, configPath, version string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("version", version).Str("config", manager.Path()).Msg("starting oracleguard")

	redisClient := bus.NewClient(cfg.Bus)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.Bus.RedisAddr, err)
	}

	var mlScorer scorer.Scorer
	if cfg.Scorer.Enabled {
		mlScorer = scorer.NewClient(cfg.Scorer.URL, cfg.Scorer.ModelName, cfg.Scorer.Timeout, logger)
		logger.Info().Str("url", cfg.Scorer.URL).Str("model", cfg.Scorer.ModelName).Msg("ml scorer enabled")
	}

	bank := detector.NewBank(cfg.Detection, mlScorer, logger)

	archive, err := storage.NewArchive(cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	var archiveSink engine.Archive
	if archive != nil {
		if err := archive.Init(ctx); err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		defer archive.Close()
		archiveSink = archive
		logger.Info().Str("driver", cfg.Archive.Driver).Msg("alert archive enabled")
	}

	dispatcher := notify.NewDispatcher(cfg.Notify.ChannelTimeout, logger, buildChannels(cfg, redisClient, logger)...)

	recent := alerts.NewStore(cfg.Store.MemoryLimit)
	alertStore := storage.NewRedisStore(redisClient, cfg.Store, logger)
	pipeline := engine.NewPipeline(engine.Options{
		Config:   cfg,
		Bank:     bank,
		Recent:   recent,
		Store:    alertStore,
		Archive:  archiveSink,
		Notifier: dispatcher,
		Events:   bus.NewPublisher(redisClient, logger),
		Logger:   logger,
	})

	api.Start(ctx, manager, recent, alertStore, pipeline, logger, version)
	ingest.StartKafka(ctx, cfg.Ingest.Kafka, pipeline, logger)

	go manager.Watch(3*time.Second, func(next *config.Config) {
		pipeline.UpdateConfig(next)
		logger.Info().Msg("config reloaded")
	}, func(err error) {
		logger.Warn().Err(err).Msg("config reload failed")
	}, ctx.Done())

	go cleanupLoop(ctx, pipeline, logger)

	consumer := bus.NewConsumer(redisClient, pipeline, cfg.Ingest.ChannelBuffer, logger)
	err = consumer.Run(ctx)
	if errors.Is(err, bus.ErrDisconnected) {
		logger.Error().Err(err).Msg("bus subscription lost, shutting down")
		return err
	}
	logger.Info().Msg("oracleguard stopped")
	return nil
}

// buildChannels assembles the notification fan-out. The bus channel is
// always present; HTTP channels join only when configured.
func buildChannels(cfg *config.Config, client *redis.Client, logger zerolog.Logger) []notify.Notifier {
	timeout := cfg.Notify.ChannelTimeout
	channels := []notify.Notifier{
		notify.NewRedisNotifier(client, bus.TopicFraudAlerts, logger),
	}
	if cfg.Notify.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhookNotifier(cfg.Notify.Webhook.URL, timeout, logger))
	}
	if cfg.Notify.Telegram.BotToken != "" && cfg.Notify.Telegram.ChatID != "" {
		channels = append(channels, notify.NewTelegramNotifier(
			cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID, cfg.Notify.Telegram.APIBase, timeout, logger))
	}
	if cfg.Notify.Slack.WebhookURL != "" {
		channels = append(channels, notify.NewSlackNotifier(cfg.Notify.Slack.WebhookURL, timeout, logger))
	}
	return channels
}

func cleanupLoop(ctx context.Context, pipeline *engine.Pipeline, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := pipeline.CleanupDedup()
			if removed > 0 {
				logger.Info().Int("removed", removed).Msg("dedup entries expired")
			}
		}
	}
}
