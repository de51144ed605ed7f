package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"oracleguard/internal/model"
)

// SlackNotifier posts a colored attachment payload to an incoming
// webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

func NewSlackNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "slack_notifier").Logger(),
	}
}

func (n *SlackNotifier) Name() string { return "slack" }

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

func (n *SlackNotifier) Notify(ctx context.Context, alert model.Alert) error {
	payload := map[string]any{
		"attachments": []slackAttachment{{
			Color: colorFor(alert.Severity),
			Title: fmt.Sprintf("\U0001F6A8 Fraud Alert - %s", alert.Severity),
			Fields: []slackField{
				{Title: "Feed", Value: alert.FeedName, Short: true},
				{Title: "Type", Value: string(alert.Type), Short: true},
				{Title: "Confidence", Value: fmt.Sprintf("%.2f%%", alert.Confidence*100), Short: true},
				{Title: "Potential Loss", Value: fmt.Sprintf("$%.2f", alert.PotentialLossUSD), Short: true},
				{Title: "Description", Value: alert.Description, Short: false},
			},
			Footer: "Alert ID: " + alert.ID,
			TS:     time.Now().Unix(),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	n.logger.Debug().Str("alert_id", alert.ID).Msg("slack delivered")
	return nil
}

var _ Notifier = (*SlackNotifier)(nil)
