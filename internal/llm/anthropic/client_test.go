package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"IVA-Bank/internal/llm"
)

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestChatParsesToolUse(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "transfer_funds", "input": {"from_account": "ACC-1", "to_account": "ACC-2", "amount": 25}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Chat(context.Background(), llm.Request{
		System:   "banking",
		Messages: []llm.Message{llm.UserMessage("send $25 to ACC-2")},
		Tools:    []llm.ToolSpec{{Name: "transfer_funds", Description: "transfer"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.StopReason != llm.StopToolUse || resp.Message.Content != "Let me check." {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %+v", resp.Message.ToolCalls)
	}
	call := resp.Message.ToolCalls[0]
	if call.ID != "toolu_1" || call.Arguments["amount"] != float64(25) {
		t.Fatalf("unexpected call: %+v", call)
	}
	if body["model"] != defaultModel {
		t.Fatalf("unexpected model in request: %v", body["model"])
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected tool in request, got %v", body["tools"])
	}
}

func TestConvertRequestMergesToolResults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	calls := []llm.ToolCall{
		{ID: "a", Name: "get_account_balance", Arguments: map[string]any{}},
		{ID: "b", Name: "get_customer_profile", Arguments: map[string]any{"email": "x@example.com"}},
	}
	params, err := client.convertRequest(llm.Request{Messages: []llm.Message{
		llm.UserMessage("hi"),
		{Role: llm.RoleAssistant, ToolCalls: calls},
		llm.ToolResultMessage(calls[0], "[]", false),
		llm.ToolResultMessage(calls[1], "{}", false),
	}})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected tool results merged into one user turn, got %d messages", len(params.Messages))
	}
	if len(params.Messages[2].Content) != 2 {
		t.Fatalf("expected two tool result blocks, got %d", len(params.Messages[2].Content))
	}
	if _, err := client.convertRequest(llm.Request{Messages: []llm.Message{{Role: "narrator"}}}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
