// Package tools holds the banking tools the agents may call. A Registry owns
// the tool definitions, renders their schemas for the model and executes
// calls, turning failures into error results the model can read.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/llm"
	"IVA-Bank/pkg/logger"
)

// Handler 执行工具逻辑。返回值为 string 时原样作为结果，其余类型序列化为 JSON。
type Handler func(ctx context.Context, args Args) (any, error)

// Tool 描述一个可供模型调用的工具。
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     Handler
}

// Result 是一次工具调用的输出。
type Result struct {
	Content string
	IsError bool
}

// Invocation 记录一次工具调用，用于回复与审计。
type Invocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result"`
	IsError   bool           `json:"is_error"`
	Duration  time.Duration  `json:"duration"`
}

// Observer 在每次调用结束后被回调。
type Observer func(name string, isError bool, elapsed time.Duration)

// Registry 管理工具集合。
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	observer Observer
	logger   *slog.Logger
}

// RegistryOption 定义可选配置。
type RegistryOption func(*Registry)

// WithObserver 注册调用观察者。
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		r.observer = o
	}
}

// NewRegistry 创建空的工具注册表。
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{tools: make(map[string]Tool), logger: logger.Named("tools")}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register 注册工具，名称重复时报错。
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Name)
	if name == "" || tool.Handler == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "工具名称与处理函数不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("工具 %s 已注册", name))
	}
	tool.Name = name
	r.tools[name] = tool
	return nil
}

// Lookup 返回指定名称的工具。
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names 返回已注册的工具名称，按字母序排列。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs 返回指定工具的模型描述，未注册的名称会被忽略。不传参数时返回全部工具。
func (r *Registry) Specs(names ...string) []llm.ToolSpec {
	if len(names) == 0 {
		names = r.Names()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			continue
		}
		specs = append(specs, llm.ToolSpec{Name: tool.Name, Description: tool.Description, Parameters: tool.Schema})
	}
	return specs
}

// Invoke 执行工具。工具失败不会返回 error，而是返回 IsError 的结果交给模型处理。
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) Result {
	start := time.Now()
	tool, ok := r.Lookup(name)
	var result Result
	if !ok {
		result = Result{Content: fmt.Sprintf("Error: unknown tool %q.", name), IsError: true}
	} else {
		result = r.run(ctx, tool, Args(args))
	}
	elapsed := time.Since(start)

	attrs := []any{
		slog.String("tool", name),
		slog.Bool("is_error", result.IsError),
		slog.Duration("elapsed", elapsed),
	}
	if s := SessionFrom(ctx); s != nil && s.CustomerID != 0 {
		attrs = append(attrs, slog.Int64("customer_id", s.CustomerID))
	}
	logger.Audit().Info("tool_invoked", attrs...)
	if r.observer != nil {
		r.observer(name, result.IsError, elapsed)
	}
	return result
}

func (r *Registry) run(ctx context.Context, tool Tool, args Args) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("工具执行崩溃", slog.String("tool", tool.Name), slog.Any("panic", rec))
			result = Result{Content: "Error: internal tool failure.", IsError: true}
		}
	}()
	out, err := tool.Handler(ctx, args)
	if err != nil {
		if !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
			r.logger.Warn("工具执行失败", slog.String("tool", tool.Name), slog.Any("error", err))
		}
		return Result{Content: ErrorText(err), IsError: true}
	}
	switch v := out.(type) {
	case string:
		return Result{Content: v}
	case nil:
		return Result{Content: "null"}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Result{Content: ErrorText(err), IsError: true}
		}
		return Result{Content: string(data)}
	}
}

// ErrorText 将错误渲染为 "Error: <message>." 形式。
func ErrorText(err error) string {
	msg := strings.TrimSpace(xerrors.MessageOf(err))
	if msg == "" {
		msg = "unknown error"
	}
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return "Error: " + msg
}
