package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Notification 封装一次索引运行的结果摘要。
type Notification struct {
	Date         string
	Status       string
	Trigger      string
	Message      string
	FallbackFrom string
	Errors       []string
	Warnings     []string
	Elapsed      time.Duration
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *resty.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
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
		client:   resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")).SetTimeout(timeout),
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": n.chatID,
			"text":    renderMessage(note),
		}).
		SetResult(&result).
		Post("/bot" + n.botToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode())
	}
	if !result.OK {
		return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
	}

	n.logger.Info().Str("date", note.Date).
		Str("status", note.Status).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Tokenomics Indexer]\n")
	builder.WriteString(fmt.Sprintf("Date: %s\n", note.Date))
	builder.WriteString(fmt.Sprintf("Status: %s\n", note.Status))
	if note.Trigger != "" {
		builder.WriteString(fmt.Sprintf("Trigger: %s\n", note.Trigger))
	}
	if note.Message != "" {
		builder.WriteString(note.Message + "\n")
	}
	if note.FallbackFrom != "" {
		builder.WriteString(fmt.Sprintf("Fallback from: %s\n", note.FallbackFrom))
	}
	for _, e := range note.Errors {
		builder.WriteString("Error: " + e + "\n")
	}
	for _, w := range note.Warnings {
		builder.WriteString("Warning: " + w + "\n")
	}
	if note.Elapsed > 0 {
		builder.WriteString(fmt.Sprintf("Elapsed: %s\n", note.Elapsed.Round(time.Millisecond)))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
