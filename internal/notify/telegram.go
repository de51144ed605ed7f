package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oracleguard/internal/model"
)

// TelegramNotifier pushes a templated HTML message via the Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Notify(ctx context.Context, alert model.Alert) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       renderTelegramMessage(alert),
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Debug().Str("alert_id", alert.ID).Msg("telegram delivered")
	return nil
}

func renderTelegramMessage(alert model.Alert) string {
	emoji := emojiFor(alert.Severity)
	b := strings.Builder{}
	fmt.Fprintf(&b, "%s <b>FRAUD ALERT - %s</b> %s\n\n", emoji, alert.Severity, emoji)
	fmt.Fprintf(&b, "<b>Feed:</b> %s\n", alert.FeedName)
	fmt.Fprintf(&b, "<b>Type:</b> %s\n", alert.Type)
	fmt.Fprintf(&b, "<b>Time:</b> %s\n", alert.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "<b>Confidence:</b> %.2f%%\n", alert.Confidence*100)
	fmt.Fprintf(&b, "<b>Anomaly Score:</b> %.4f\n\n", alert.AnomalyScore)
	fmt.Fprintf(&b, "<b>Description:</b>\n%s\n\n", alert.Description)
	fmt.Fprintf(&b, "<b>Potential Loss:</b> $%.2f\n\n", alert.PotentialLossUSD)
	b.WriteString("<b>Recommended Actions:</b>\n")
	for _, action := range alert.RecommendedActions {
		fmt.Fprintf(&b, "• %s\n", action)
	}
	fmt.Fprintf(&b, "\n<b>Alert ID:</b> <code>%s</code>", alert.ID)
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
