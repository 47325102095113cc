package tools

import (
	"context"
	"sync"

	"IVA-Bank/internal/bank"
	"IVA-Bank/internal/fraud"
)

// Session 描述一次对话轮次的调用方身份与欺诈筛查记录。
// 每个轮次创建一个新的 Session，筛查记录不会跨轮次保留。
type Session struct {
	CustomerID    int64
	Email         string
	Name          string
	Authenticated bool

	mu     sync.Mutex
	checks map[bank.Cents]fraud.Verdict
}

// NewSession 创建会话。customerID 为 0 表示访客。
func NewSession(customerID int64, email, name string, authenticated bool) *Session {
	return &Session{
		CustomerID:    customerID,
		Email:         bank.NormalizeEmail(email),
		Name:          name,
		Authenticated: authenticated,
		checks:        make(map[bank.Cents]fraud.Verdict),
	}
}

// RecordFraudCheck 记录一次金额筛查结果。
func (s *Session) RecordFraudCheck(amount bank.Cents, verdict fraud.Verdict) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checks == nil {
		s.checks = make(map[bank.Cents]fraud.Verdict)
	}
	s.checks[amount] = verdict
}

// FraudCheck 返回本轮次内同一金额的筛查结果。
func (s *Session) FraudCheck(amount bank.Cents) (fraud.Verdict, bool) {
	if s == nil {
		return fraud.Verdict{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.checks[amount]
	return v, ok
}

type sessionKey struct{}

// WithSession 将会话写入 context。
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom 从 context 读取会话，不存在时返回 nil。
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
