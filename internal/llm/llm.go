package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Role 标识对话消息的角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall 表示模型请求的一次工具调用。
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	// ArgumentsError 非空表示模型给出的参数无法解析，该调用不应执行。
	ArgumentsError string
}

// Message 是一条对话消息。Role 为 tool 时 ToolCallID 指向对应的调用。
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
	IsError    bool
}

// ToolSpec 描述暴露给模型的工具。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Request 描述一次对话补全请求。
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
}

// StopReason 说明模型停止生成的原因。
type StopReason string

const (
	StopEndTurn  StopReason = "end_turn"
	StopToolUse  StopReason = "tool_use"
	StopMaxToken StopReason = "max_tokens"
)

// Response 是模型返回的一条助手消息。
type Response struct {
	Message    Message
	StopReason StopReason
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// UserMessage 构造用户消息。
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage 构造助手消息。
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage 构造工具结果消息。
func ToolResultMessage(call ToolCall, content string, isError bool) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name, IsError: isError}
}

// SchemaMap 将工具参数 schema 转换为通用 map，供各家 API 的 JSON 请求体使用。
func SchemaMap(schema *jsonschema.Schema) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

// DecodeArguments 解析模型输出的参数 JSON，空串视为无参数。
func DecodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	args := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
