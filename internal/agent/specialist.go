package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/llm"
	"IVA-Bank/internal/tools"
	"IVA-Bank/pkg/logger"
)

// DefaultMaxSteps 是单个专家允许的最大模型调用次数。
const DefaultMaxSteps = 8

const emptyReplyFallback = "I'm sorry, I couldn't come up with an answer. Could you rephrase your request?"

// Node 是图中的一个节点。
type Node interface {
	Run(ctx context.Context, state *State) error
}

// Specialist 以 ReAct 方式执行单个专家：模型请求工具就执行，直到给出最终答复。
type Specialist struct {
	profile     Profile
	client      llm.Client
	registry    *tools.Registry
	maxSteps    int
	temperature float64
	maxTokens   int
	llmTimeout  time.Duration
	logger      *slog.Logger
}

// newSpecialist 创建专家。
func newSpecialist(profile Profile, client llm.Client, registry *tools.Registry, cfg runConfig) *Specialist {
	maxSteps := cfg.maxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Specialist{
		profile:     profile,
		client:      client,
		registry:    registry,
		maxSteps:    maxSteps,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
		llmTimeout:  cfg.llmTimeout,
		logger:      logger.Named("agent").With("route", string(profile.Route)),
	}
}

// Run 实现 Node。
func (s *Specialist) Run(ctx context.Context, state *State) error {
	if s.client == nil || s.registry == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "专家未配置大模型或工具")
	}
	system := systemPrompt(s.profile, state)
	specs := s.registry.Specs(s.profile.Tools...)

	for step := 0; step < s.maxSteps; step++ {
		resp, err := s.chat(ctx, llm.Request{
			System:      system,
			Messages:    state.Messages,
			Tools:       specs,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		})
		if err != nil {
			return err
		}

		msg := resp.Message
		msg.Role = llm.RoleAssistant
		if len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				msg.Content = emptyReplyFallback
			}
			state.Messages = append(state.Messages, msg)
			return nil
		}
		state.Messages = append(state.Messages, msg)

		// 按模型给出的顺序依次执行工具。
		for _, call := range msg.ToolCalls {
			start := time.Now()
			var result tools.Result
			switch {
			case !s.profile.Allows(call.Name):
				s.logger.Warn("拒绝调用工具集之外的工具", slog.String("tool", call.Name))
				result = tools.Result{
					Content: fmt.Sprintf("Error: tool %q is not available to the %s assistant.", call.Name, s.profile.Route),
					IsError: true,
				}
			case call.ArgumentsError != "":
				s.logger.Warn("工具参数无法解析", slog.String("tool", call.Name), slog.String("error", call.ArgumentsError))
				result = tools.Result{
					Content: fmt.Sprintf("Error: arguments for %s are not valid JSON (%s). Send a JSON object with plain string or number values.", call.Name, call.ArgumentsError),
					IsError: true,
				}
			default:
				result = s.registry.Invoke(ctx, call.Name, call.Arguments)
			}
			state.Messages = append(state.Messages, llm.ToolResultMessage(call, result.Content, result.IsError))
			state.Invocations = append(state.Invocations, tools.Invocation{
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    result.Content,
				IsError:   result.IsError,
				Duration:  time.Since(start),
			})
		}
	}
	return xerrors.New(CodeAgentStepsExceeded, fmt.Sprintf("%s assistant exceeded %d steps", s.profile.Route, s.maxSteps))
}

func (s *Specialist) chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	llmCtx := ctx
	if s.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, s.llmTimeout)
		defer cancel()
	}
	resp, err := s.client.Chat(llmCtx, req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(llmCtx.Err(), context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "大模型推理失败")
	}
	if resp == nil {
		return nil, xerrors.New(xerrors.CodeExecutorFailure, "大模型返回空响应")
	}
	return resp, nil
}
