package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"oracleguard/internal/config"
	"oracleguard/internal/model"
)

// Topics are the wire contract with the rest of the oracle network.
const (
	TopicPriceUpdate        = "price:update"
	TopicAnomalyDetected    = "anomaly:detected"
	TopicFraudAlerts        = "fraud:alerts"
	TopicBreakerActivated   = "circuit_breaker:activated"
	TopicBreakerDeactivated = "circuit_breaker:deactivated"
)

// ErrDisconnected is returned when the subscription drops while the
// consumer is still supposed to run. It is fatal: the pipeline halts and
// must be restarted externally.
var ErrDisconnected = errors.New("bus disconnected")

func NewClient(cfg config.BusConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
}

// Handler is the pipeline surface the consumer drives.
type Handler interface {
	HandleEvent(ctx context.Context, ev model.FeedEvent) []model.Alert
	HandleExternalAnomaly(ctx context.Context, anomaly model.ExternalAnomaly) model.Alert
}

type message struct {
	topic   string
	payload []byte
}

// Consumer subscribes to the feed topics and drives the pipeline. Each
// feed gets its own worker so events of one feed are handled in arrival
// order while distinct feeds proceed in parallel.
type Consumer struct {
	client   *redis.Client
	handler  Handler
	logger   zerolog.Logger
	buffer   int
	mu       sync.Mutex
	workers  map[string]chan message
	workerWG sync.WaitGroup
}

func NewConsumer(client *redis.Client, handler Handler, buffer int, logger zerolog.Logger) *Consumer {
	if buffer <= 0 {
		buffer = 1000
	}
	return &Consumer{
		client:  client,
		handler: handler,
		logger:  logger.With().Str("component", "bus_consumer").Logger(),
		buffer:  buffer,
		workers: make(map[string]chan message),
	}
}

// Run blocks consuming the bus until ctx is cancelled (returns nil) or
// the subscription drops (returns ErrDisconnected). In-flight per-feed
// work is drained before returning.
func (c *Consumer) Run(ctx context.Context) error {
	sub := c.client.Subscribe(ctx, TopicPriceUpdate, TopicAnomalyDetected)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe: %v", ErrDisconnected, err)
	}
	c.logger.Info().Strs("topics", []string{TopicPriceUpdate, TopicAnomalyDetected}).Msg("bus subscription established")

	ch := sub.Channel()
	defer c.drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDisconnected
			}
			c.route(ctx, message{topic: msg.Channel, payload: []byte(msg.Payload)})
		}
	}
}

// route hands the message to the feed's worker, creating it on first use.
func (c *Consumer) route(ctx context.Context, msg message) {
	feed := peekFeedName(msg.payload)

	c.mu.Lock()
	w, ok := c.workers[feed]
	if !ok {
		w = make(chan message, c.buffer)
		c.workers[feed] = w
		c.workerWG.Add(1)
		go c.work(ctx, feed, w)
	}
	c.mu.Unlock()

	select {
	case w <- msg:
	default:
		c.logger.Warn().Str("feed", feed).Str("topic", msg.topic).Msg("feed worker queue full, dropping message")
	}
}

func (c *Consumer) work(ctx context.Context, feed string, in <-chan message) {
	defer c.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg message) {
	switch msg.topic {
	case TopicPriceUpdate:
		var ev model.FeedEvent
		if err := json.Unmarshal(msg.payload, &ev); err != nil {
			c.logger.Warn().Err(err).Str("topic", msg.topic).Msg("dropping undecodable message")
			return
		}
		ev.Source = "bus"
		c.handler.HandleEvent(ctx, ev)
	case TopicAnomalyDetected:
		var anomaly model.ExternalAnomaly
		if err := json.Unmarshal(msg.payload, &anomaly); err != nil {
			c.logger.Warn().Err(err).Str("topic", msg.topic).Msg("dropping undecodable message")
			return
		}
		c.handler.HandleExternalAnomaly(ctx, anomaly)
	default:
		c.logger.Warn().Str("topic", msg.topic).Msg("message on unexpected topic")
	}
}

func (c *Consumer) drain() {
	c.mu.Lock()
	for _, w := range c.workers {
		close(w)
	}
	c.workers = make(map[string]chan message)
	c.mu.Unlock()
	c.workerWG.Wait()
}

// peekFeedName extracts feed_name for worker routing without committing
// to a full decode.
func peekFeedName(payload []byte) string {
	var probe struct {
		FeedName string `json:"feed_name"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.FeedName == "" {
		return "UNKNOWN"
	}
	return probe.FeedName
}

// Publisher announces circuit breaker transitions on the bus.
type Publisher struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewPublisher(client *redis.Client, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With().Str("component", "bus_publisher").Logger(),
	}
}

func (p *Publisher) PublishBreakerActivated(ctx context.Context, ev model.BreakerEvent) error {
	return p.publish(ctx, TopicBreakerActivated, ev)
}

func (p *Publisher) PublishBreakerDeactivated(ctx context.Context, ev model.BreakerEvent) error {
	return p.publish(ctx, TopicBreakerDeactivated, ev)
}

func (p *Publisher) publish(ctx context.Context, topic string, ev model.BreakerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal breaker event: %w", err)
	}
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug().Str("topic", topic).Str("feed", ev.FeedName).Msg("breaker event published")
	return nil
}
