package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/adapters/httpclient"
	"github.com/alejandrodnm/llmtrader/internal/domain"
)

// Discord webhooks allow 5 requests per 2s; we stay under it.
const discordRatePerSec = 2

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Discord envía eventos como embeds a un webhook.
type Discord struct {
	client     *httpclient.Client
	webhookURL string
	username   string
}

// NewDiscord crea un notificador de Discord. Devuelve nil si webhookURL está vacío.
func NewDiscord(webhookURL string, opts ...httpclient.Option) *Discord {
	if webhookURL == "" {
		return nil
	}
	opts = append([]httpclient.Option{httpclient.WithRate(discordRatePerSec, 1)}, opts...)
	return &Discord{
		client:     httpclient.New(opts...),
		webhookURL: webhookURL,
		username:   "llmtrader",
	}
}

// Notify implementa ports.Notifier.
func (d *Discord) Notify(ctx context.Context, ev domain.Event) error {
	m, ok := render(ev)
	if !ok {
		return nil
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	embed := discordEmbed{
		Title:       m.Title,
		Description: m.Body,
		Color:       m.Color,
		Timestamp:   ts.UTC().Format(time.RFC3339),
	}
	embed.Footer.Text = "llmtrader"
	for _, f := range m.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f[0], Value: f[1], Inline: true})
	}

	payload := discordPayload{Username: d.username, Embeds: []discordEmbed{embed}}
	if err := d.client.PostJSON(ctx, d.webhookURL, payload, nil); err != nil {
		return fmt.Errorf("notify.Discord: %w", err)
	}
	return nil
}
