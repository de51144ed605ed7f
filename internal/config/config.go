package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string              `json:"log_level" yaml:"log_level"`
	LogFormat string              `json:"log_format" yaml:"log_format"`
	Bus       BusConfig           `json:"bus" yaml:"bus"`
	Ingest    IngestConfig        `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig     `json:"detection" yaml:"detection"`
	Dedup     DedupConfig         `json:"dedup" yaml:"dedup"`
	Breaker   BreakerConfig       `json:"circuit_breaker" yaml:"circuit_breaker"`
	Scorer    ScorerConfig        `json:"scorer" yaml:"scorer"`
	Notify    NotifyConfig        `json:"notify" yaml:"notify"`
	Store     StoreConfig         `json:"store" yaml:"store"`
	Archive   ArchiveConfig       `json:"archive" yaml:"archive"`
	API       APIConfig           `json:"api" yaml:"api"`
	Contracts map[string][]string `json:"contracts" yaml:"contracts"`
}

// BusConfig points at the Redis instance carrying the feed topics and the
// alert store.
type BusConfig struct {
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type DetectionConfig struct {
	HistorySize          int     `json:"history_size" yaml:"history_size"`
	PriceChangeThreshold float64 `json:"price_change_threshold" yaml:"price_change_threshold"`
	CriticalPriceChange  float64 `json:"critical_price_change" yaml:"critical_price_change"`
	FlashLoanMove        float64 `json:"flash_loan_move" yaml:"flash_loan_move"`
	VolumeSpikeThreshold float64 `json:"volume_spike_threshold" yaml:"volume_spike_threshold"`
	LatencyThresholdMS   float64 `json:"latency_threshold_ms" yaml:"latency_threshold_ms"`
	MinimumSources       int     `json:"minimum_sources" yaml:"minimum_sources"`
	MLThreshold          float64 `json:"ml_threshold" yaml:"ml_threshold"`
	MLWindow             int     `json:"ml_window" yaml:"ml_window"`
}

type DedupConfig struct {
	Cooldown  time.Duration `json:"cooldown" yaml:"cooldown"`
	Retention time.Duration `json:"retention" yaml:"retention"`
}

type BreakerConfig struct {
	AutoBreak      bool    `json:"auto_break" yaml:"auto_break"`
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`
}

type ScorerConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	URL       string        `json:"url" yaml:"url"`
	ModelName string        `json:"model_name" yaml:"model_name"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

type NotifyConfig struct {
	ChannelTimeout time.Duration  `json:"channel_timeout" yaml:"channel_timeout"`
	Webhook        WebhookConfig  `json:"webhook" yaml:"webhook"`
	Telegram       TelegramConfig `json:"telegram" yaml:"telegram"`
	Slack          SlackConfig    `json:"slack" yaml:"slack"`
}

type WebhookConfig struct {
	URL string `json:"url" yaml:"url"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
	APIBase  string `json:"api_base" yaml:"api_base"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

type StoreConfig struct {
	RetentionDays int `json:"retention_days" yaml:"retention_days"`
	IndexLimit    int `json:"index_limit" yaml:"index_limit"`
	MemoryLimit   int `json:"memory_limit" yaml:"memory_limit"`
}

type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Bus: BusConfig{
			RedisAddr: "localhost:6379",
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			Kafka:         KafkaConfig{Enabled: false},
		},
		Detection: DetectionConfig{
			HistorySize:          100,
			PriceChangeThreshold: 0.15,
			CriticalPriceChange:  0.5,
			FlashLoanMove:        0.1,
			VolumeSpikeThreshold: 5.0,
			LatencyThresholdMS:   1000,
			MinimumSources:       3,
			MLThreshold:          0.85,
			MLWindow:             50,
		},
		Dedup: DedupConfig{
			Cooldown:  5 * time.Minute,
			Retention: 24 * time.Hour,
		},
		Breaker: BreakerConfig{
			AutoBreak:      true,
			ScoreThreshold: 0.95,
		},
		Scorer: ScorerConfig{
			Enabled:   false,
			ModelName: "ensemble",
			Timeout:   5 * time.Second,
		},
		Notify: NotifyConfig{
			ChannelTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			RetentionDays: 30,
			IndexLimit:    10000,
			MemoryLimit:   1000,
		},
		Archive: ArchiveConfig{Enabled: false, Driver: "sqlite", DSN: "file:oracleguard.db?_pragma=busy_timeout(5000)"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Bus.RedisAddr == "" {
		cfg.Bus.RedisAddr = "localhost:6379"
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Detection.HistorySize <= 0 {
		cfg.Detection.HistorySize = 100
	}
	if cfg.Detection.CriticalPriceChange <= 0 {
		cfg.Detection.CriticalPriceChange = 0.5
	}
	if cfg.Detection.FlashLoanMove <= 0 {
		cfg.Detection.FlashLoanMove = 0.1
	}
	if cfg.Detection.MLWindow <= 0 {
		cfg.Detection.MLWindow = 50
	}
	if cfg.Dedup.Cooldown <= 0 {
		cfg.Dedup.Cooldown = 5 * time.Minute
	}
	if cfg.Dedup.Retention <= 0 {
		cfg.Dedup.Retention = 24 * time.Hour
	}
	if cfg.Breaker.ScoreThreshold <= 0 {
		cfg.Breaker.ScoreThreshold = 0.95
	}
	if cfg.Scorer.Timeout <= 0 {
		cfg.Scorer.Timeout = 5 * time.Second
	}
	if cfg.Scorer.ModelName == "" {
		cfg.Scorer.ModelName = "ensemble"
	}
	if cfg.Notify.ChannelTimeout <= 0 {
		cfg.Notify.ChannelTimeout = 10 * time.Second
	}
	if cfg.Store.RetentionDays <= 0 {
		cfg.Store.RetentionDays = 30
	}
	if cfg.Store.IndexLimit <= 0 {
		cfg.Store.IndexLimit = 10000
	}
	if cfg.Store.MemoryLimit <= 0 {
		cfg.Store.MemoryLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.Bus.RedisAddr == "" {
		return errors.New("bus.redis_addr is required")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Scorer.Enabled && cfg.Scorer.URL == "" {
		return errors.New("scorer.url required when scorer.enabled is true")
	}
	if cfg.Detection.PriceChangeThreshold <= 0 {
		return errors.New("detection.price_change_threshold must be > 0")
	}
	if cfg.Detection.VolumeSpikeThreshold <= 0 {
		return errors.New("detection.volume_spike_threshold must be > 0")
	}
	if cfg.Detection.LatencyThresholdMS <= 0 {
		return errors.New("detection.latency_threshold_ms must be > 0")
	}
	if cfg.Detection.MinimumSources <= 0 {
		return errors.New("detection.minimum_sources must be > 0")
	}
	if cfg.Detection.MLThreshold <= 0 || cfg.Detection.MLThreshold > 1 {
		return fmt.Errorf("detection.ml_threshold must be in (0,1], got %v", cfg.Detection.MLThreshold)
	}
	if cfg.Breaker.ScoreThreshold <= 0 || cfg.Breaker.ScoreThreshold > 1 {
		return fmt.Errorf("circuit_breaker.score_threshold must be in (0,1], got %v", cfg.Breaker.ScoreThreshold)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
