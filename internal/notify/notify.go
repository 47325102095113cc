// Package notify delivers customer and operations notifications. The
// banking demo ships a mock email sender that only writes to the audit log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"IVA-Bank/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// Notification 描述一条待发送的通知。
type Notification struct {
	Kind       string
	To         []string
	Subject    string
	Body       string
	Metadata   map[string]string
	OccurredAt time.Time
}

// Notifier 负责将通知发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, n Notification) error
}

// Dispatcher 将通知广播给多个渠道。
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// FanoutDispatcher 将通知投递到全部已注册渠道。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建 FanoutDispatcher，同一渠道后注册者覆盖先注册者。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 实现 Dispatcher。
func (d *FanoutDispatcher) Notify(ctx context.Context, n Notification) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// EmailSender 定义发送邮件所需的能力。
type EmailSender interface {
	Send(ctx context.Context, subject, content string, to []string) error
}

// EmailNotifier 通过邮件发送客户通知。
type EmailNotifier struct {
	Sender        EmailSender
	SubjectPrefix string
}

// Channel 返回邮件渠道。
func (n *EmailNotifier) Channel() Channel { return ChannelEmail }

// Notify 发送邮件，没有收件人的通知直接跳过。
func (n *EmailNotifier) Notify(ctx context.Context, msg Notification) error {
	if n == nil || n.Sender == nil {
		logger.L().Warn("EmailNotifier 未正确配置，跳过发送", slog.String("kind", msg.Kind))
		return nil
	}
	if len(msg.To) == 0 {
		return nil
	}
	content := msg.Body
	if len(msg.Metadata) > 0 {
		keys := make([]string, 0, len(msg.Metadata))
		for k := range msg.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(content)
		b.WriteString("\n\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, msg.Metadata[k])
		}
		content = b.String()
	}
	return n.Sender.Send(ctx, n.SubjectPrefix+msg.Subject, content, msg.To)
}

// SentEmail 记录一封模拟发送的邮件。
type SentEmail struct {
	To      []string
	Subject string
	Body    string
}

// defaultMockKeep 为 MockSender 默认保留的发件记录条数。
const defaultMockKeep = 100

// MockSender 不真正发送邮件，只写审计日志并保留最近 Keep 条发件记录。
type MockSender struct {
	// Keep 为保留的记录条数，零值使用 defaultMockKeep。
	Keep int

	mu   sync.Mutex
	sent []SentEmail
}

// Send 实现 EmailSender。
func (m *MockSender) Send(_ context.Context, subject, content string, to []string) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentEmail{To: append([]string(nil), to...), Subject: subject, Body: content})
	keep := m.Keep
	if keep <= 0 {
		keep = defaultMockKeep
	}
	if over := len(m.sent) - keep; over > 0 {
		m.sent = append(m.sent[:0:0], m.sent[over:]...)
	}
	m.mu.Unlock()
	logger.Audit().Info("mock_email_sent",
		slog.String("to", strings.Join(to, ",")),
		slog.String("subject", subject),
	)
	return nil
}

// Sent 返回保留的发件记录副本，按发送顺序排列。
func (m *MockSender) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}
