// Package events carries banking side effects (welcome emails, transfer
// receipts, fraud alerts) from request handlers to background notification
// workers over an in-memory, Redis or RabbitMQ queue.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	xerrors "IVA-Bank/internal/errors"
)

// Type 标识事件类型。
type Type string

const (
	TypeCustomerRegistered   Type = "customer.registered"
	TypeTransferCompleted    Type = "transfer.completed"
	TypeApplicationSubmitted Type = "application.submitted"
	TypeAddressUpdated       Type = "customer.address_updated"
	TypeFraudFlagged         Type = "fraud.flagged"
)

// maxAttempts 为单个事件的最大投递次数。
const maxAttempts = 3

// Event 描述一次需要异步处理的业务事件。
type Event struct {
	ID            string            `json:"id"`
	Type          Type              `json:"type"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty"`
	Payload       map[string]string `json:"payload,omitempty"`
	Attempts      int               `json:"attempts"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// New 创建带 ID 与时间戳的事件。
func New(typ Type, email, name string, payload map[string]string) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		CustomerEmail: email,
		CustomerName:  name,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// Handler 处理一条事件。
type Handler func(ctx context.Context, event Event) error

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Consumer 负责消费事件。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Bus 同时具备发布与消费能力。
type Bus interface {
	Publisher
	Consumer
}

// Discard 丢弃全部事件，用于未配置事件总线的场景。
type Discard struct{}

// Publish 实现 Publisher。
func (Discard) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher。
func (Discard) Close() error { return nil }

func encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "序列化事件失败")
	}
	return data, nil
}

func decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return event, xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析事件失败")
	}
	return event, nil
}

// shouldRetry 判断失败事件是否需要重新投递，并累加投递次数。
func shouldRetry(event *Event, err error) bool {
	event.Attempts++
	return xerrors.RetryableError(err) && event.Attempts < maxAttempts
}
