package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/alejandrodnm/llmtrader/internal/adapters/httpclient"
	"github.com/alejandrodnm/llmtrader/internal/domain"
)

const (
	defaultTelegramBase = "https://api.telegram.org"
	// Telegram permite ~1 mensaje/s por chat.
	telegramRatePerSec = 1
)

type telegramMessage struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Telegram envía eventos con la Bot API (sendMessage).
type Telegram struct {
	client  *httpclient.Client
	baseURL string
	token   string
	chatID  string
}

// NewTelegram crea un notificador de Telegram. Devuelve nil si falta el token o el chat.
// baseURL vacío usa la API pública.
func NewTelegram(baseURL, token, chatID string, opts ...httpclient.Option) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = defaultTelegramBase
	}
	opts = append([]httpclient.Option{httpclient.WithRate(telegramRatePerSec, 1)}, opts...)
	return &Telegram{
		client:  httpclient.New(opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatID:  chatID,
	}
}

// Notify implementa ports.Notifier. Los eventos de señal y portfolio se envían en silencio.
func (t *Telegram) Notify(ctx context.Context, ev domain.Event) error {
	m, ok := render(ev)
	if !ok {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(m.Title))
	for _, f := range m.Fields {
		fmt.Fprintf(&sb, "\n<b>%s:</b> %s", html.EscapeString(f[0]), html.EscapeString(f[1]))
	}
	if m.Body != "" {
		fmt.Fprintf(&sb, "\n\n<i>%s</i>", html.EscapeString(m.Body))
	}

	msg := telegramMessage{
		ChatID:              t.chatID,
		Text:                sb.String(),
		ParseMode:           "HTML",
		DisableNotification: ev.Kind == domain.EventSignal || ev.Kind == domain.EventPortfolio,
	}
	var resp telegramResponse
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	if err := t.client.PostJSON(ctx, url, msg, &resp); err != nil {
		return fmt.Errorf("notify.Telegram: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("notify.Telegram: %s", resp.Description)
	}
	return nil
}
