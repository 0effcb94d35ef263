package notify

import (
	"context"
	"net/http"
)

// Discord embed colours per level.
var discordColors = map[Level]int{
	LevelInfo:    0x3498db,
	LevelSuccess: 0x2ecc71,
	LevelFailure: 0xe74c3c,
}

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient()}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Send posts msg as a single embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       msg.Title,
			Description: msg.Body,
			Color:       discordColors[msg.Level],
		}},
	}
	_, err := postJSON(ctx, d.client, "discord", d.webhookURL, payload)
	return err
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
