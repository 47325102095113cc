package agent

import (
	"context"
	"strings"
	"time"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/llm"
	"IVA-Bank/internal/tools"
)

// Query 是一次用户请求。
type Query struct {
	Text          string
	Customer      *CustomerInfo
	Authenticated bool
}

// Reply 是助手的答复。
type Reply struct {
	Route       Route              `json:"route"`
	Text        string             `json:"text"`
	Invocations []tools.Invocation `json:"invocations,omitempty"`
}

type runConfig struct {
	maxSteps    int
	temperature float64
	maxTokens   int
	llmTimeout  time.Duration
}

// Assistant 持有编译好的图，是 HTTP 层调用的入口。
type Assistant struct {
	graph    *Graph
	cfg      runConfig
	router   Router
	profiles map[Route]Profile
	observe  func(Route)
}

// Option 定义可选的 Assistant 配置。
type Option func(*Assistant)

// WithLLMTimeout 设置单次调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Assistant) {
		if timeout <= 0 {
			a.cfg.llmTimeout = 0
			return
		}
		a.cfg.llmTimeout = timeout
	}
}

// WithMaxSteps 设置专家的最大推理步数。
func WithMaxSteps(steps int) Option {
	return func(a *Assistant) {
		a.cfg.maxSteps = steps
	}
}

// WithTemperature 设置采样温度，默认 0。
func WithTemperature(t float64) Option {
	return func(a *Assistant) {
		a.cfg.temperature = t
	}
}

// WithMaxTokens 设置单次回复的最大 token 数。
func WithMaxTokens(n int) Option {
	return func(a *Assistant) {
		a.cfg.maxTokens = n
	}
}

// WithRouter 替换默认路由器。
func WithRouter(r Router) Option {
	return func(a *Assistant) {
		a.router = r
	}
}

// WithProfiles 覆盖专家配置。
func WithProfiles(profiles map[Route]Profile) Option {
	return func(a *Assistant) {
		a.profiles = profiles
	}
}

// WithRouteObserver 在每次路由后回调，用于指标统计。
func WithRouteObserver(fn func(Route)) Option {
	return func(a *Assistant) {
		a.observe = fn
	}
}

// New 创建助手并编译路由图。
func New(client llm.Client, registry *tools.Registry, opts ...Option) *Assistant {
	a := &Assistant{
		cfg:    runConfig{maxSteps: DefaultMaxSteps},
		router: NewRouter(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.profiles == nil {
		a.profiles = DefaultProfiles(bank.FromDollars(5000))
	}

	nodes := make(map[Route]Node, len(a.profiles))
	for route, profile := range a.profiles {
		nodes[route] = newSpecialist(profile, client, registry, a.cfg)
	}
	a.graph = NewGraph(a.router, nodes)
	a.graph.observe = a.observe
	return a
}

// ProcessQuery 以单条用户消息构造初始状态，执行一次图并返回最后一条消息。
func (a *Assistant) ProcessQuery(ctx context.Context, q Query) (*Reply, error) {
	// 验证请求。
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "query must not be empty")
	}

	// 每个轮次使用新的会话，欺诈筛查记录只在本轮有效。
	var session *tools.Session
	if q.Customer != nil {
		session = tools.NewSession(q.Customer.ID, q.Customer.Email, q.Customer.Name, q.Authenticated)
	} else {
		session = tools.NewSession(0, "", "", q.Authenticated)
	}
	ctx = tools.WithSession(ctx, session)

	state := &State{
		Messages:      []llm.Message{llm.UserMessage(text)},
		Customer:      q.Customer,
		Authenticated: q.Authenticated,
	}
	state, err := a.graph.Invoke(ctx, state)
	if err != nil {
		return nil, err
	}
	return &Reply{Route: state.Route, Text: state.LastMessage(), Invocations: state.Invocations}, nil
}
