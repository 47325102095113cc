package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type failingNotifier struct{}

func (failingNotifier) Channel() Channel { return "broken" }
func (failingNotifier) Notify(context.Context, Notification) error {
	return errors.New("boom")
}

func TestFanoutDeliversToEmailAndCollectsErrors(t *testing.T) {
	sender := &MockSender{}
	dispatcher := NewFanout(&EmailNotifier{Sender: sender, SubjectPrefix: "[IVA] "}, failingNotifier{}, nil)

	err := dispatcher.Notify(context.Background(), Notification{
		Kind:     "customer.registered",
		To:       []string{"ada@example.com"},
		Subject:  "Welcome",
		Body:     "Hello Ada",
		Metadata: map[string]string{"b": "2", "a": "1"},
	})
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected joined error from broken channel, got %v", err)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sent))
	}
	if sent[0].Subject != "[IVA] Welcome" {
		t.Fatalf("unexpected subject: %s", sent[0].Subject)
	}
	if !strings.Contains(sent[0].Body, "- a: 1\n- b: 2") {
		t.Fatalf("metadata should be sorted: %q", sent[0].Body)
	}
}

func TestEmailNotifierSkipsWithoutRecipients(t *testing.T) {
	sender := &MockSender{}
	n := &EmailNotifier{Sender: sender}
	if err := n.Notify(context.Background(), Notification{Subject: "x"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.Sent()) != 0 {
		t.Fatalf("expected no email")
	}
}

func TestMockSenderKeepsRecentEmails(t *testing.T) {
	sender := &MockSender{Keep: 2}
	for _, subject := range []string{"one", "two", "three"} {
		if err := sender.Send(context.Background(), subject, "body", []string{"ada@example.com"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	sent := sender.Sent()
	if len(sent) != 2 || sent[0].Subject != "two" || sent[1].Subject != "three" {
		t.Fatalf("expected the two most recent emails, got %+v", sent)
	}

	unbounded := &MockSender{}
	for i := 0; i < defaultMockKeep+5; i++ {
		_ = unbounded.Send(context.Background(), "s", "b", []string{"x@example.com"})
	}
	if got := len(unbounded.Sent()); got != defaultMockKeep {
		t.Fatalf("expected %d retained emails, got %d", defaultMockKeep, got)
	}
}

func TestWebhookNotifierFiltersKinds(t *testing.T) {
	var got webhookPayload
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Kinds: []string{"fraud.flagged"}}
	ctx := context.Background()
	if err := n.Notify(ctx, Notification{Kind: "transfer.completed"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(ctx, Notification{Kind: "fraud.flagged", Subject: "Fraud", Body: "ACC-1", OccurredAt: time.Unix(0, 0)}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if calls != 1 || got.Kind != "fraud.flagged" || got.Text != "*Fraud* ACC-1" {
		t.Fatalf("unexpected webhook calls=%d payload=%+v", calls, got)
	}
}
