package events

import (
	"context"
	"log/slog"
	"sync"

	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/pkg/logger"
)

// MemoryBus 使用 channel 模拟消息队列，适用于单实例部署与测试。
type MemoryBus struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryBus 创建内存事件总线。
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{ch: make(chan Event, size), done: make(chan struct{})}
}

// Publish 实现 Publisher。总线关闭后返回 QUEUE_FAILURE。
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	if b.isClosed() {
		return errBusClosed()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return errBusClosed()
	case b.ch <- event:
		return nil
	}
}

// Consume 启动指定数量的工作协程，直到 ctx 取消或总线关闭。
func (b *MemoryBus) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-b.done:
					return
				case event := <-b.ch:
					if err := handler(ctx, event); err != nil && shouldRetry(&event, err) {
						b.requeue(event)
					}
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// requeue 在缓冲区有空位时重新投递，工作协程绝不阻塞在自身消费的 channel 上。
func (b *MemoryBus) requeue(event Event) {
	if b.isClosed() {
		return
	}
	select {
	case b.ch <- event:
	default:
		logger.Named("events").Warn("事件缓冲区已满，放弃重试",
			slog.String("type", string(event.Type)),
			slog.String("event_id", event.ID),
			slog.Int("attempts", event.Attempts),
		)
	}
}

func (b *MemoryBus) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Close 关闭事件总线，未消费的事件被丢弃。
func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

func errBusClosed() error {
	return xerrors.New(xerrors.CodeQueueFailure, "事件总线已关闭")
}
