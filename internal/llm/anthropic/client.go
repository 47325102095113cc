// Package anthropic adapts the Claude Messages API to the llm.Client
// interface using the official Go SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"IVA-Bank/internal/llm"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
)

// Config 描述 Anthropic 客户端配置。
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// MaxRetries 为负数时使用 SDK 默认值。
	MaxRetries int
}

// Client 通过 anthropic-sdk-go 调用 Messages 接口。
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient 创建 Anthropic 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Anthropic API Key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}, nil
}

// Chat 实现 llm.Client。
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	params, err := c.convertRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("请求 Anthropic 失败: %w", err)
	}

	out := llm.Message{Role: llm.RoleAssistant}
	var text []string
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, variant.Text)
		case anthropic.ToolUseBlock:
			call := llm.ToolCall{ID: variant.ID, Name: variant.Name, Arguments: make(map[string]any)}
			if len(variant.Input) > 0 {
				if err := json.Unmarshal(variant.Input, &call.Arguments); err != nil {
					call.Arguments = map[string]any{}
					call.ArgumentsError = err.Error()
				}
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	out.Content = strings.TrimSpace(strings.Join(text, "\n"))

	stop := llm.StopEndTurn
	switch {
	case len(out.ToolCalls) > 0:
		stop = llm.StopToolUse
	case string(msg.StopReason) == "max_tokens":
		stop = llm.StopMaxToken
	}
	return &llm.Response{Message: out, StopReason: stop}, nil
}

func (c *Client) convertRequest(req llm.Request) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		param, err := toMessageParam(msg)
		if err != nil {
			return params, err
		}
		// Claude 要求 user/assistant 严格交替，相邻同角色消息需要合并。
		if n := len(messages); n > 0 && messages[n-1].Role == param.Role {
			messages[n-1].Content = append(messages[n-1].Content, param.Content...)
			continue
		}
		messages = append(messages, param)
	}
	params.Messages = messages

	for _, spec := range req.Tools {
		schema := llm.SchemaMap(spec.Parameters)
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					input.Required = append(input.Required, s)
				}
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: input,
			},
		})
	}
	return params, nil
}

func toMessageParam(msg llm.Message) (anthropic.MessageParam, error) {
	switch msg.Role {
	case llm.RoleUser:
		return anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		}, nil
	case llm.RoleTool:
		return anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError)},
		}, nil
	case llm.RoleAssistant:
		var blocks []anthropic.ContentBlockParamUnion
		if strings.TrimSpace(msg.Content) != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			var input any = call.Arguments
			if call.Arguments == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}
		return anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks}, nil
	default:
		return anthropic.MessageParam{}, fmt.Errorf("不支持的消息角色 %q", msg.Role)
	}
}
