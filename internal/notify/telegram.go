package notify

import (
	"context"
	"fmt"
	"net/http"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		apiBase: telegramAPIBase,
		client:  defaultHTTPClient(),
	}
}

// Send posts msg with sendMessage. Telegram's legacy Markdown uses single
// asterisks for bold, so the body's "**" markers are collapsed.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     fmt.Sprintf("*%s*\n%s", msg.Title, telegramMarkdown(msg.Body)),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	_, err := postJSON(ctx, t.client, "telegram", url, payload)
	return err
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

func telegramMarkdown(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '*' && i+1 < len(s) && s[i+1] == '*' {
			out = append(out, '*')
			i++
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
