package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"oracleguard/internal/model"
)

// Notifier delivers one alert over a single channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert model.Alert) error
}

// Dispatcher fans an alert out to every configured channel. Channels run
// concurrently, each under its own timeout; a failure or timeout is
// recorded as false and never aborts the remaining channels.
type Dispatcher struct {
	channels []Notifier
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewDispatcher(timeout time.Duration, logger zerolog.Logger, channels ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// NotifyAll returns once every channel has completed or timed out.
// Failed channels are not retried.
func (d *Dispatcher) NotifyAll(ctx context.Context, alert model.Alert) map[string]bool {
	results := make(map[string]bool, len(d.channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Notifier) {
			defer wg.Done()
			chCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			err := ch.Notify(chCtx, alert)
			if err != nil {
				d.logger.Error().Err(err).
					Str("channel", ch.Name()).
					Str("alert_id", alert.ID).
					Msg("channel delivery failed")
			}

			mu.Lock()
			results[ch.Name()] = err == nil
			mu.Unlock()
		}(ch)
	}

	wg.Wait()
	return results
}

// severityEmoji decorates chat messages.
var severityEmoji = map[model.Severity]string{
	model.SeverityCritical: "\U0001F6A8",
	model.SeverityHigh:     "⚠️",
	model.SeverityMedium:   "\U0001F514",
	model.SeverityLow:      "\U0001F4E2",
	model.SeverityInfo:     "ℹ️",
}

// severityColor maps severities to Slack attachment colors.
var severityColor = map[model.Severity]string{
	model.SeverityCritical: "#FF0000",
	model.SeverityHigh:     "#FF6600",
	model.SeverityMedium:   "#FFCC00",
	model.SeverityLow:      "#00CC00",
	model.SeverityInfo:     "#0066CC",
}

func emojiFor(severity model.Severity) string {
	if e, ok := severityEmoji[severity]; ok {
		return e
	}
	return "\U0001F4E2"
}

func colorFor(severity model.Severity) string {
	if c, ok := severityColor[severity]; ok {
		return c
	}
	return "#000000"
}
