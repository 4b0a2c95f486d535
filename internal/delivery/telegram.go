package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// TelegramTransport pushes alerts through the Telegram Bot API. Channel ids
// and user ids are both chat ids there.
type TelegramTransport struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramTransport constructs the Telegram transport.
func NewTelegramTransport(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramTransport{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram").Logger(),
	}
}

func (t *TelegramTransport) SendToChannel(ctx context.Context, channelID string, msg Message) error {
	return t.send(ctx, channelID, msg)
}

func (t *TelegramTransport) SendToUser(ctx context.Context, userID string, msg Message) error {
	return t.send(ctx, userID, msg)
}

// send calls the sendMessage API.
func (t *TelegramTransport) send(ctx context.Context, chatID string, msg Message) error {
	if chatID == "" {
		return fmt.Errorf("%w: empty chat id", ErrRejected)
	}
	payload := map[string]string{
		"chat_id": chatID,
		"text":    msg.PlainText(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: telegram status %d", ErrRejected, resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("%w: telegram ok=false", ErrRejected)
		}
	}

	t.logger.Debug().Str("chat_id", chatID).Str("title", msg.Title).Msg("telegram message sent")
	return nil
}

var _ Transport = (*TelegramTransport)(nil)
