package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DiscordOptions configures the Discord REST transport.
type DiscordOptions struct {
	Token             string
	APIBase           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// DiscordTransport posts embeds through the Discord REST API.
type DiscordTransport struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu       sync.Mutex
	dmByUser map[string]string
}

// NewDiscordTransport constructs the transport.
func NewDiscordTransport(opts DiscordOptions, logger zerolog.Logger) *DiscordTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.APIBase == "" {
		opts.APIBase = "https://discord.com/api/v10"
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &DiscordTransport{
		token:    opts.Token,
		baseURL:  strings.TrimRight(opts.APIBase, "/"),
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With().Str("component", "discord").Logger(),
		dmByUser: make(map[string]string),
	}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Thumbnail   *discordURL         `json:"thumbnail,omitempty"`
	Footer      *discordText        `json:"footer,omitempty"`
}

type discordURL struct {
	URL string `json:"url"`
}

type discordText struct {
	Text string `json:"text"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

func toEmbed(msg Message) discordEmbed {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		URL:         msg.URL,
		Color:       msg.Color,
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.Format(time.RFC3339)
	}
	if msg.ImageURL != "" {
		embed.Thumbnail = &discordURL{URL: msg.ImageURL}
	}
	if msg.Footer != "" {
		embed.Footer = &discordText{Text: msg.Footer}
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return embed
}

// SendToChannel posts the embed into a channel.
func (d *DiscordTransport) SendToChannel(ctx context.Context, channelID string, msg Message) error {
	if channelID == "" {
		return fmt.Errorf("%w: empty channel id", ErrRejected)
	}
	payload := discordMessage{Embeds: []discordEmbed{toEmbed(msg)}}
	if err := d.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", payload, nil); err != nil {
		return fmt.Errorf("discord channel %s: %w", channelID, err)
	}
	return nil
}

// SendToUser opens (or reuses) a DM channel and posts the embed into it.
func (d *DiscordTransport) SendToUser(ctx context.Context, userID string, msg Message) error {
	channelID, err := d.dmChannel(ctx, userID)
	if err != nil {
		return fmt.Errorf("discord dm %s: %w", userID, err)
	}
	return d.SendToChannel(ctx, channelID, msg)
}

func (d *DiscordTransport) dmChannel(ctx context.Context, userID string) (string, error) {
	d.mu.Lock()
	cached, ok := d.dmByUser[userID]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}

	var channel struct {
		ID string `json:"id"`
	}
	if err := d.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": userID}, &channel); err != nil {
		return "", err
	}
	if channel.ID == "" {
		return "", fmt.Errorf("%w: no dm channel returned", ErrRejected)
	}

	d.mu.Lock()
	d.dmByUser[userID] = channel.ID
	d.mu.Unlock()
	return channel.ID, nil
}

func (d *DiscordTransport) do(ctx context.Context, method, path string, payload, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		d.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Bytes("body", snippet).Msg("discord rejected request")
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

var _ Transport = (*DiscordTransport)(nil)
