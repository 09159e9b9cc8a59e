package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vault-monitor/internal/alertlog"
)

// TelegramSink pushes alerts through the Telegram Bot API.
type TelegramSink struct {
	botToken string
	chatID   string
	baseURL  string
	prefix   string
	client   *http.Client
	logger   zerolog.Logger
}

// TelegramOptions configures a TelegramSink.
type TelegramOptions struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Prefix   string
	Timeout  time.Duration
}

// NewTelegramSink builds a TelegramSink.
func NewTelegramSink(opts TelegramOptions, logger zerolog.Logger) *TelegramSink {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.Prefix == "" {
		opts.Prefix = "[Vault Monitor]"
	}

	return &TelegramSink{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		prefix:   opts.Prefix,
		client:   &http.Client{Timeout: opts.Timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Publish calls sendMessage with a rendered alert.
func (n *TelegramSink) Publish(ctx context.Context, entry alertlog.Entry) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    n.render(entry),
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
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("alert_type", entry.Type).
		Str("severity", string(entry.Severity)).
		Msg("alert sent (telegram)")
	return nil
}

func (n *TelegramSink) render(entry alertlog.Entry) string {
	b := strings.Builder{}
	b.WriteString(n.prefix)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Type: %s\n", entry.Type))
	b.WriteString(fmt.Sprintf("Severity: %s\n", strings.ToUpper(string(entry.Severity))))
	b.WriteString(fmt.Sprintf("Time: %s UTC\n", entry.Timestamp.UTC().Format(time.RFC3339)))
	if msg, ok := entry.Data["message"].(string); ok && msg != "" {
		b.WriteString(msg)
		b.WriteString("\n")
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "message" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%s: %v\n", k, entry.Data[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ Sink = (*TelegramSink)(nil)
