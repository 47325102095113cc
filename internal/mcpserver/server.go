// Package mcpserver publishes the banking tool registry over the Model Context
// Protocol so that external MCP hosts can drive the same tools the agents use.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"IVA-Bank/internal/tools"
	loggerpkg "IVA-Bank/pkg/logger"
)

// ServerName 是对外公布的 MCP 服务名称。
const ServerName = "BankingService"

// Server 将 tools.Registry 中的工具注册为 MCP 工具。
type Server struct {
	registry *tools.Registry
	session  *tools.Session
	mcp      *mcp.Server
	logger   *slog.Logger
}

// Option 自定义 Server。
type Option func(*Server)

// WithSession 指定所有调用共享的会话。默认使用未登录的访客会话。
func WithSession(session *tools.Session) Option {
	return func(s *Server) {
		if session != nil {
			s.session = session
		}
	}
}

// New 创建 MCP 服务并注册 registry 中的全部工具。
func New(registry *tools.Registry, version string, opts ...Option) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		registry: registry,
		session:  tools.NewSession(0, "", "", false),
		mcp:      mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil),
		logger:   loggerpkg.Named("mcpserver"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for _, name := range registry.Names() {
		tool, _ := registry.Lookup(name)
		s.mcp.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Schema,
		}, s.handler(tool.Name))
	}
	return s
}

// MCP 返回底层的 SDK 服务，便于接入自定义传输。
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// RunStdio 通过标准输入输出提供服务，直到上下文取消或连接断开。
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("MCP 服务启动", "name", ServerName, "tools", len(s.registry.Names()))
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		return s.call(ctx, name, raw), nil
	}
}

// call 执行一次工具调用。参数解析失败也以错误结果返回给调用方。
func (s *Server) call(ctx context.Context, name string, raw json.RawMessage) *mcp.CallToolResult {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return textResult("Error: arguments must be a JSON object.", true)
		}
	}
	result := s.registry.Invoke(tools.WithSession(ctx, s.session), name, args)
	return textResult(result.Content, result.IsError)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}
