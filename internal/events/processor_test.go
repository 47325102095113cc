package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/notify"
)

type countingDispatcher struct {
	mu       sync.Mutex
	received []notify.Notification
	failures atomic.Int32
}

func (d *countingDispatcher) Notify(_ context.Context, n notify.Notification) error {
	if d.failures.Load() > 0 {
		d.failures.Add(-1)
		return errors.New("smtp unavailable")
	}
	d.mu.Lock()
	d.received = append(d.received, n)
	d.mu.Unlock()
	return nil
}

func (d *countingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.received)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("condition not met before deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestProcessorHandlesConcurrentEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus := NewMemoryBus(512)
	dispatcher := &countingDispatcher{}
	processor := NewProcessor(bus, dispatcher, WithWorkerCount(4))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	for i := 0; i < total; i++ {
		event := New(TypeTransferCompleted, fmt.Sprintf("user%d@example.com", i), "User", map[string]string{
			"amount":       "$10.00",
			"from_account": "ACC-1",
			"to_account":   "ACC-2",
		})
		if err := bus.Publish(ctx, event); err != nil {
			t.Fatalf("发布事件失败: %v", err)
		}
	}
	waitFor(t, func() bool { return dispatcher.count() >= total })
}

func TestProcessorRetriesFailedDispatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus := NewMemoryBus(8)
	dispatcher := &countingDispatcher{}
	dispatcher.failures.Store(1)

	var observed atomic.Int32
	processor := NewProcessor(bus, dispatcher, WithObserver(func(Type, error) { observed.Add(1) }))
	go func() { _ = processor.Start(ctx) }()

	if err := bus.Publish(ctx, New(TypeCustomerRegistered, "ada@example.com", "Ada", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return observed.Load() == 2 })
	if dispatcher.count() != 1 {
		t.Fatalf("expected one delivered notification, got %d", dispatcher.count())
	}
}

func TestProcessorGivesUpAfterMaxAttempts(t *testing.T) {
	dispatcher := &countingDispatcher{}
	dispatcher.failures.Store(100)
	processor := NewProcessor(nil, dispatcher)

	event := New(TypeFraudFlagged, "ada@example.com", "Ada", map[string]string{"amount": "$9000.00"})
	attempts := 0
	for {
		err := processor.Handle(context.Background(), event)
		attempts++
		if err == nil || !shouldRetry(&event, err) {
			break
		}
	}
	if attempts != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, attempts)
	}
}

func TestProcessorStartRequiresConsumer(t *testing.T) {
	if err := NewProcessor(nil, &countingDispatcher{}).Start(context.Background()); err == nil {
		t.Fatalf("expected error without consumer")
	}
}

func TestRenderEvents(t *testing.T) {
	cases := []struct {
		typ     Type
		payload map[string]string
		subject string
		body    string
	}{
		{TypeCustomerRegistered, nil, "Welcome to IVA Bank", "registration is complete"},
		{TypeTransferCompleted, map[string]string{"amount": "$25.00", "from_account": "A", "to_account": "B"}, "Transfer confirmation", "$25.00 from A to B"},
		{TypeApplicationSubmitted, map[string]string{"product_type": "Credit Card", "application_id": "7", "status": "Pending"}, "Application received", "Credit Card application (ID 7)"},
		{TypeAddressUpdated, nil, "Address updated", "address on file"},
		{TypeFraudFlagged, map[string]string{"amount": "$9000.00", "from_account": "A"}, "Security alert: transaction under review", "$9000.00 from A"},
	}
	for _, tc := range cases {
		n, ok := Render(New(tc.typ, "ada@example.com", "Ada", tc.payload))
		if !ok {
			t.Fatalf("%s: expected notification", tc.typ)
		}
		if n.Subject != tc.subject {
			t.Fatalf("%s: unexpected subject %q", tc.typ, n.Subject)
		}
		if !strings.Contains(n.Body, tc.body) || !strings.HasPrefix(n.Body, "Dear Ada") {
			t.Fatalf("%s: unexpected body %q", tc.typ, n.Body)
		}
		if len(n.To) != 1 || n.To[0] != "ada@example.com" {
			t.Fatalf("%s: unexpected recipients %v", tc.typ, n.To)
		}
	}
	if _, ok := Render(Event{Type: "unknown"}); ok {
		t.Fatalf("unknown events should not render")
	}
}

func TestMemoryBusRejectsAfterClose(t *testing.T) {
	bus := NewMemoryBus(1)
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := bus.Publish(context.Background(), New(TypeCustomerRegistered, "", "", nil)); err == nil {
		t.Fatalf("expected publish to fail after close")
	}
	if err := bus.Consume(context.Background(), 2, func(context.Context, Event) error { return nil }); err != nil {
		t.Fatalf("consume on closed bus should return cleanly, got %v", err)
	}
}

func TestMemoryBusRetryDoesNotBlockPublishers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewMemoryBus(1)
	release := make(chan struct{})
	var calls atomic.Int32
	handler := func(context.Context, Event) error {
		if calls.Add(1) == 1 {
			<-release
		}
		return xerrors.New(xerrors.CodeUpstreamFailure, "webhook unavailable")
	}
	consumed := make(chan struct{})
	go func() {
		_ = bus.Consume(ctx, 1, handler)
		close(consumed)
	}()

	if err := bus.Publish(ctx, New(TypeFraudFlagged, "ada@example.com", "Ada", nil)); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	waitFor(t, func() bool { return calls.Load() == 1 })
	if err := bus.Publish(ctx, New(TypeFraudFlagged, "ada@example.com", "Ada", nil)); err != nil {
		t.Fatalf("publish second: %v", err)
	}
	close(release)

	publishCtx, publishCancel := context.WithTimeout(ctx, 2*time.Second)
	defer publishCancel()
	if err := bus.Publish(publishCtx, New(TypeTransferCompleted, "ada@example.com", "Ada", nil)); err != nil {
		t.Fatalf("publish after a failed retry should not block: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close blocked")
	}
	select {
	case <-consumed:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop after close")
	}
}

func TestEventEncodingRoundTrip(t *testing.T) {
	event := New(TypeTransferCompleted, "ada@example.com", "Ada", map[string]string{"amount": "$1.00"})
	data, err := encode(event)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != event.ID || decoded.Payload["amount"] != "$1.00" || !decoded.OccurredAt.Equal(event.OccurredAt) {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
	if _, err := decode([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}
