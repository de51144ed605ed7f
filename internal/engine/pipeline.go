package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"oracleguard/internal/alerts"
	"oracleguard/internal/config"
	"oracleguard/internal/detector"
	"oracleguard/internal/history"
	"oracleguard/internal/model"
)

// AlertStore persists alerts keyed by id with a retention TTL.
type AlertStore interface {
	Store(ctx context.Context, alert model.Alert) error
}

// Archive appends alerts to a durable audit log.
type Archive interface {
	SaveAlert(ctx context.Context, alert model.Alert) error
}

// Notifier fans an alert out to the configured channels and reports
// per-channel success.
type Notifier interface {
	NotifyAll(ctx context.Context, alert model.Alert) map[string]bool
}

// BreakerPublisher announces circuit breaker transitions on the bus.
type BreakerPublisher interface {
	PublishBreakerActivated(ctx context.Context, ev model.BreakerEvent) error
	PublishBreakerDeactivated(ctx context.Context, ev model.BreakerEvent) error
}

// Pipeline wires detection, deduplication, alert creation, persistence,
// notification and the circuit breaker for a stream of feed events.
// Events of the same feed are serialized; distinct feeds run in parallel.
type Pipeline struct {
	logger   zerolog.Logger
	cfg      atomic.Value
	bank     *detector.Bank
	dedup    *Deduplicator
	breaker  *BreakerController
	factory  *Factory
	recent   *alerts.Store
	store    AlertStore
	archive  Archive
	notifier Notifier
	events   BreakerPublisher

	mu    sync.Mutex
	feeds map[string]*feedState

	started        time.Time
	eventsSeen     atomic.Int64
	alertsEmitted  atomic.Int64
	eventsSkipped  atomic.Int64
	eventsRejected atomic.Int64
}

type feedState struct {
	mu   sync.Mutex
	hist *history.Rolling
}

// Options carries the pipeline's collaborators. store, archive, notifier
// and events may be nil; the corresponding step is skipped.
type Options struct {
	Config   *config.Config
	Bank     *detector.Bank
	Recent   *alerts.Store
	Store    AlertStore
	Archive  Archive
	Notifier Notifier
	Events   BreakerPublisher
	Logger   zerolog.Logger
}

func NewPipeline(opts Options) *Pipeline {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	recent := opts.Recent
	if recent == nil {
		recent = alerts.NewStore(cfg.Store.MemoryLimit)
	}
	p := &Pipeline{
		logger:   opts.Logger.With().Str("component", "pipeline").Logger(),
		bank:     opts.Bank,
		dedup:    NewDeduplicator(cfg.Dedup.Cooldown),
		breaker:  NewBreakerController(),
		factory:  NewFactory(cfg.Contracts),
		recent:   recent,
		store:    opts.Store,
		archive:  opts.Archive,
		notifier: opts.Notifier,
		events:   opts.Events,
		feeds:    make(map[string]*feedState),
		started:  time.Now().UTC(),
	}
	p.cfg.Store(cfg)
	return p
}

func (p *Pipeline) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	p.cfg.Store(cfg)
	p.dedup.SetCooldown(cfg.Dedup.Cooldown)
}

func (p *Pipeline) config() *config.Config {
	if v := p.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// HandleEvent processes one feed update end to end: validation, breaker
// check, detection, dedup, alert emission and breaker tripping.
func (p *Pipeline) HandleEvent(ctx context.Context, ev model.FeedEvent) []model.Alert {
	p.eventsSeen.Add(1)

	if err := ev.Validate(); err != nil {
		p.eventsRejected.Add(1)
		p.logger.Warn().Err(err).Str("feed", ev.FeedName).Msg("dropping malformed feed event")
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if p.breaker.IsActive(ev.FeedName) {
		p.eventsSkipped.Add(1)
		p.logger.Warn().Str("feed", ev.FeedName).Msg("circuit breaker active, skipping event")
		return nil
	}

	cfg := p.config()
	fs := p.getFeed(ev.FeedName, cfg)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.hist.Add(history.Point{
		Price:       ev.Price,
		Volume:      ev.Volume,
		SourceCount: ev.SourceCount,
		LatencyMS:   ev.LatencyMS,
		Timestamp:   ev.Timestamp,
	})

	detections := p.bank.Run(ctx, ev, fs.hist)
	if len(detections) == 0 {
		return nil
	}

	emitted := make([]model.Alert, 0, len(detections))
	for _, det := range detections {
		if !p.dedup.ShouldAlert(ev.FeedName, det.Type, det.Severity) {
			p.logger.Debug().Str("feed", ev.FeedName).Str("fraud_type", string(det.Type)).Msg("alert deduplicated")
			continue
		}
		alert := p.factory.Build(ev.FeedName, det, time.Now().UTC())
		p.emit(ctx, alert)
		emitted = append(emitted, alert)

		if cfg.Breaker.AutoBreak && det.Score > cfg.Breaker.ScoreThreshold {
			p.activateBreaker(ctx, ev.FeedName, alert.ID)
		}
	}
	return emitted
}

// HandleExternalAnomaly converts a pre-classified upstream anomaly
// directly into an alert, bypassing the detector bank and the dedup gate.
func (p *Pipeline) HandleExternalAnomaly(ctx context.Context, anomaly model.ExternalAnomaly) model.Alert {
	feed := anomaly.FeedName
	if feed == "" {
		feed = "UNKNOWN"
	}
	confidence := anomaly.Confidence
	if confidence == 0 {
		confidence = 0.8
	}
	score := anomaly.Score
	if score == 0 {
		score = 0.8
	}
	description := anomaly.Description
	if description == "" {
		description = "External anomaly detected"
	}

	det := model.DetectionResult{
		Type:             model.FraudOracleSpoofing,
		Severity:         model.SeverityHigh,
		Confidence:       confidence,
		Score:            score,
		Description:      description,
		Evidence:         anomaly.Evidence,
		PotentialLossUSD: anomaly.PotentialLoss,
	}
	alert := p.factory.Build(feed, det, time.Now().UTC())
	p.emit(ctx, alert)
	return alert
}

// emit records the alert in memory, persists it, and fans it out. The
// alert counts as generated once appended to the in-memory ring; store
// and channel failures are logged and absorbed.
func (p *Pipeline) emit(ctx context.Context, alert model.Alert) {
	p.alertsEmitted.Add(1)
	p.recent.Add(alert)

	p.logger.Info().
		Str("alert_id", alert.ID).
		Str("feed", alert.FeedName).
		Str("fraud_type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Float64("potential_loss_usd", alert.PotentialLossUSD).
		Msg("alert generated")

	if p.store != nil {
		if err := p.store.Store(ctx, alert); err != nil {
			p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("alert store write failed")
		}
	}
	if p.archive != nil {
		if err := p.archive.SaveAlert(ctx, alert); err != nil {
			p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("alert archive write failed")
		}
	}
	if p.notifier != nil {
		results := p.notifier.NotifyAll(ctx, alert)
		p.logger.Info().Str("alert_id", alert.ID).Any("channels", results).Msg("notification results")
	}
}

func (p *Pipeline) activateBreaker(ctx context.Context, feed, alertID string) {
	now := time.Now().UTC()
	st, ok := p.breaker.Activate(feed, alertID, now)
	if !ok {
		return
	}
	p.logger.Warn().Str("feed", feed).Str("alert_id", alertID).Msg("circuit breaker activated")
	if p.events != nil {
		ev := model.BreakerEvent{FeedName: feed, AlertID: st.AlertID, Timestamp: now}
		if err := p.events.PublishBreakerActivated(ctx, ev); err != nil {
			p.logger.Error().Err(err).Str("feed", feed).Msg("breaker activation publish failed")
		}
	}
}

// DeactivateBreaker releases a feed's breaker on explicit command. It
// reports whether the feed was suspended.
func (p *Pipeline) DeactivateBreaker(ctx context.Context, feed string) bool {
	_, ok := p.breaker.Deactivate(feed)
	if !ok {
		return false
	}
	p.logger.Info().Str("feed", feed).Msg("circuit breaker deactivated")
	if p.events != nil {
		ev := model.BreakerEvent{FeedName: feed, Timestamp: time.Now().UTC()}
		if err := p.events.PublishBreakerDeactivated(ctx, ev); err != nil {
			p.logger.Error().Err(err).Str("feed", feed).Msg("breaker deactivation publish failed")
		}
	}
	return true
}

func (p *Pipeline) Breakers() []model.BreakerState {
	return p.breaker.States()
}

func (p *Pipeline) Recent() *alerts.Store {
	return p.recent
}

// CleanupDedup sweeps dedup entries older than the retention window.
func (p *Pipeline) CleanupDedup() int {
	return p.dedup.Cleanup(p.config().Dedup.Retention)
}

// Stats is a point-in-time observability snapshot.
type Stats struct {
	Started        time.Time        `json:"started"`
	EventsSeen     int64            `json:"events_seen"`
	EventsSkipped  int64            `json:"events_skipped"`
	EventsRejected int64            `json:"events_rejected"`
	TotalAlerts    int64            `json:"total_alerts"`
	ActiveBreakers []string         `json:"active_breakers"`
	AlertCounts    map[string]int64 `json:"alert_counts"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Started:        p.started,
		EventsSeen:     p.eventsSeen.Load(),
		EventsSkipped:  p.eventsSkipped.Load(),
		EventsRejected: p.eventsRejected.Load(),
		TotalAlerts:    p.alertsEmitted.Load(),
		ActiveBreakers: p.breaker.ActiveFeeds(),
		AlertCounts:    p.dedup.Stats(),
	}
}

func (p *Pipeline) getFeed(feed string, cfg *config.Config) *feedState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fs, ok := p.feeds[feed]; ok {
		return fs
	}
	fs := &feedState{hist: history.NewRolling(cfg.Detection.HistorySize)}
	p.feeds[feed] = fs
	return fs
}
