// Package ollama talks to a local Ollama daemon through its /api/chat
// endpoint, which is the default model backend for development.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"IVA-Bank/internal/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.2"
	defaultTimeout = 120 * time.Second
)

// Config 描述 Ollama 客户端配置。
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 调用 Ollama 的 /api/chat 接口。
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 创建 Ollama 客户端。
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{baseURL: baseURL, model: model, httpClient: &http.Client{Timeout: timeout}}
}

type chatFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type chatToolCall struct {
	Function chatFunction `json:"function"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Tools    []chatTool     `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message    chatMessage `json:"message"`
	DoneReason string      `json:"done_reason"`
}

// Chat 实现 llm.Client。Ollama 的工具调用没有 ID，这里补齐 uuid 以便关联工具结果。
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("序列化 Ollama 请求失败: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构建 Ollama 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 Ollama 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("Ollama 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 Ollama 响应失败: %w", err)
	}

	out := llm.Message{Role: llm.RoleAssistant, Content: strings.TrimSpace(decoded.Message.Content)}
	for _, call := range decoded.Message.ToolCalls {
		args := call.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: uuid.NewString(), Name: call.Function.Name, Arguments: args})
	}
	stop := llm.StopEndTurn
	switch {
	case len(out.ToolCalls) > 0:
		stop = llm.StopToolUse
	case decoded.DoneReason == "length":
		stop = llm.StopMaxToken
	}
	return &llm.Response{Message: out, StopReason: stop}, nil
}

func (c *Client) buildRequest(req llm.Request) chatRequest {
	payload := chatRequest{Model: c.model, Stream: false}
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	payload.Options = options

	if system := strings.TrimSpace(req.System); system != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(llm.RoleSystem), Content: system})
	}
	for _, msg := range req.Messages {
		wire := chatMessage{Role: string(msg.Role), Content: msg.Content}
		if msg.Role == llm.RoleTool {
			wire.ToolName = msg.Name
		}
		for _, call := range msg.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, chatToolCall{Function: chatFunction{Name: call.Name, Arguments: call.Arguments}})
		}
		payload.Messages = append(payload.Messages, wire)
	}
	for _, spec := range req.Tools {
		var tool chatTool
		tool.Type = "function"
		tool.Function.Name = spec.Name
		tool.Function.Description = spec.Description
		tool.Function.Parameters = llm.SchemaMap(spec.Parameters)
		payload.Tools = append(payload.Tools, tool)
	}
	return payload
}
