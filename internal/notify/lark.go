package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Lark card header templates per level.
var larkTemplates = map[Level]string{
	LevelInfo:    "blue",
	LevelSuccess: "green",
	LevelFailure: "red",
}

// LarkSender delivers interactive cards to a Lark (Feishu) bot webhook.
type LarkSender struct {
	webhookURL string
	client     *http.Client
}

// NewLarkSender creates a LarkSender for the given webhook URL.
func NewLarkSender(webhookURL string) *LarkSender {
	return &LarkSender{webhookURL: webhookURL, client: defaultHTTPClient()}
}

// Send posts msg as an interactive card. Lark answers 200 even for rejected
// cards, so the response code is checked as well.
func (l *LarkSender) Send(ctx context.Context, msg Message) error {
	body, err := postJSON(ctx, l.client, "lark", l.webhookURL, larkCard(msg))
	if err != nil {
		return err
	}

	var result struct {
		Code       *int   `json:"code"`
		StatusCode *int   `json:"StatusCode"`
		Msg        string `json:"msg"`
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("lark: decode response: %w", err)
	}
	if (result.Code != nil && *result.Code == 0) || (result.StatusCode != nil && *result.StatusCode == 0) {
		return nil
	}
	if result.Code == nil && result.StatusCode == nil {
		return nil
	}
	return fmt.Errorf("lark: api error: %s", string(body))
}

// Name returns the sender identifier.
func (l *LarkSender) Name() string {
	return "lark"
}

func larkCard(msg Message) map[string]any {
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"config": map[string]any{"wide_screen_mode": true},
			"header": map[string]any{
				"title":    map[string]any{"tag": "plain_text", "content": msg.Title},
				"template": larkTemplates[msg.Level],
			},
			"elements": []any{
				map[string]any{
					"tag":  "div",
					"text": map[string]any{"tag": "lark_md", "content": msg.Body},
				},
			},
		},
	}
}
