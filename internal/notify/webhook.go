package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier 将运营类通知以 JSON 推送到 Slack/钉钉兼容的 webhook。
// Kinds 非空时只转发列出的通知类型。
type WebhookNotifier struct {
	URL    string
	Kinds  []string
	Client *http.Client
}

type webhookPayload struct {
	Text     string            `json:"text"`
	Kind     string            `json:"kind"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   string            `json:"sent_at"`
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 实现 Notifier。
func (n *WebhookNotifier) Notify(ctx context.Context, msg Notification) error {
	if n == nil || n.URL == "" || !n.accepts(msg.Kind) {
		return nil
	}
	body, err := json.Marshal(webhookPayload{
		Text:     fmt.Sprintf("*%s* %s", msg.Subject, msg.Body),
		Kind:     msg.Kind,
		Metadata: msg.Metadata,
		SentAt:   msg.OccurredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook 请求失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) accepts(kind string) bool {
	if len(n.Kinds) == 0 {
		return true
	}
	for _, k := range n.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
