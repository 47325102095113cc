package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"IVA-Bank/internal/llm"
)

func TestChatAssignsToolCallIDs(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"query_policy_rag","arguments":{"search_query":"ach"}}}]},"done":true,"done_reason":"stop"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/", Model: "llama3.2", Timeout: time.Second})
	resp, err := client.Chat(context.Background(), llm.Request{
		System:      "advisor",
		Messages:    []llm.Message{llm.UserMessage("what is the ach policy?")},
		Tools:       []llm.ToolSpec{{Name: "query_policy_rag", Description: "policy search"}},
		Temperature: 0,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.StopReason != llm.StopToolUse || len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	call := resp.Message.ToolCalls[0]
	if call.ID == "" || call.Arguments["search_query"] != "ach" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if captured.Stream || captured.Model != "llama3.2" {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Function.Parameters["type"] != "object" {
		t.Fatalf("unexpected tools: %+v", captured.Tools)
	}
}

func TestChatToolResultCarriesToolName(t *testing.T) {
	client := NewClient(Config{})
	payload := client.buildRequest(llm.Request{Messages: []llm.Message{
		llm.ToolResultMessage(llm.ToolCall{ID: "x", Name: "get_account_balance"}, "[]", false),
	}})
	if payload.Model != defaultModel || payload.Messages[0].ToolName != "get_account_balance" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	if _, err := client.Chat(context.Background(), llm.Request{}); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}
