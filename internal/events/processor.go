package events

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/notify"
	"IVA-Bank/pkg/logger"
)

// Processor 从事件总线消费事件，并渲染为通知派发出去。
type Processor struct {
	consumer    Consumer
	dispatcher  notify.Dispatcher
	workerCount int
	logger      *slog.Logger
	observe     func(Type, error)
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithObserver 注册每条事件处理完成后的回调，用于指标统计。
func WithObserver(fn func(Type, error)) ProcessorOption {
	return func(p *Processor) {
		p.observe = fn
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(consumer Consumer, dispatcher notify.Dispatcher, opts ...ProcessorOption) *Processor {
	p := &Processor{
		consumer:    consumer,
		dispatcher:  dispatcher,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("events")
	}
	return p
}

// Start 启动事件处理循环，阻塞直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置事件消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理单条事件。
func (p *Processor) Handle(ctx context.Context, event Event) error {
	err := p.handle(ctx, event)
	if p.observe != nil {
		p.observe(event.Type, err)
	}
	return err
}

func (p *Processor) handle(ctx context.Context, event Event) error {
	if p.dispatcher == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置通知派发器")
	}
	n, ok := Render(event)
	if !ok {
		p.logger.Debug("忽略未知事件", slog.String("type", string(event.Type)), slog.String("event_id", event.ID))
		return nil
	}
	if err := p.dispatcher.Notify(ctx, n); err != nil {
		p.logger.Warn("派发通知失败",
			slog.String("type", string(event.Type)),
			slog.String("event_id", event.ID),
			slog.Int("attempts", event.Attempts),
			slog.Any("error", err),
		)
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "派发通知失败")
	}
	p.logger.Info("事件已处理", slog.String("type", string(event.Type)), slog.String("event_id", event.ID))
	return nil
}

// Render 将事件转换为通知，未知类型返回 false。
func Render(event Event) (notify.Notification, bool) {
	n := notify.Notification{
		Kind:       string(event.Type),
		Metadata:   clonePayload(event.Payload),
		OccurredAt: event.OccurredAt,
	}
	if event.CustomerEmail != "" {
		n.To = []string{event.CustomerEmail}
	}
	name := event.CustomerName
	if name == "" {
		name = "Customer"
	}
	p := event.Payload

	switch event.Type {
	case TypeCustomerRegistered:
		n.Subject = "Welcome to IVA Bank"
		n.Body = fmt.Sprintf("Dear %s,\n\nYour registration is complete. You can now chat with our assistant to manage your accounts.", name)
	case TypeTransferCompleted:
		n.Subject = "Transfer confirmation"
		n.Body = fmt.Sprintf("Dear %s,\n\nYour transfer of %s from %s to %s has been completed.", name, p["amount"], p["from_account"], p["to_account"])
	case TypeApplicationSubmitted:
		n.Subject = "Application received"
		n.Body = fmt.Sprintf("Dear %s,\n\nWe received your %s application (ID %s). Its status is %s.", name, p["product_type"], p["application_id"], p["status"])
	case TypeAddressUpdated:
		n.Subject = "Address updated"
		n.Body = fmt.Sprintf("Dear %s,\n\nThe address on file for your profile has been updated.", name)
	case TypeFraudFlagged:
		n.Subject = "Security alert: transaction under review"
		n.Body = fmt.Sprintf("Dear %s,\n\nA transfer of %s from %s was flagged for review by our fraud monitoring.", name, p["amount"], p["from_account"])
	default:
		return notify.Notification{}, false
	}
	return n, true
}

func clonePayload(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
