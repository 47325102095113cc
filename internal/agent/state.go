package agent

import (
	"IVA-Bank/internal/llm"
	"IVA-Bank/internal/tools"
)

// CustomerInfo 描述当前会话的客户身份。
type CustomerInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// State 是一次对话轮次在图中流转的状态。
type State struct {
	Messages      []llm.Message
	Customer      *CustomerInfo
	Authenticated bool
	Route         Route
	Invocations   []tools.Invocation
}

// LastUserMessage 返回最后一条用户消息的内容。
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastMessage 返回最后一条消息的内容。
func (s *State) LastMessage() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}
