package agent

import "strings"

// Route 标识处理请求的专家。
type Route string

const (
	RouteOnboarding Route = "onboarding"
	RouteBanking    Route = "banking"
	RouteAdvisory   Route = "advisory"
)

// DefaultAdvisoryKeywords 命中任意一个即路由到咨询专家。
var DefaultAdvisoryKeywords = []string{"policy", "clearing", "ach", "cheque", "suggest", "investment"}

// Router 根据认证状态与最后一条用户消息选择专家。
type Router struct {
	Keywords []string
}

// NewRouter 创建路由器，keywords 为空时使用默认关键词。
func NewRouter(keywords ...string) Router {
	if len(keywords) == 0 {
		keywords = DefaultAdvisoryKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			normalized = append(normalized, kw)
		}
	}
	return Router{Keywords: normalized}
}

// Route 未认证的请求一律交给开户专家，其余按关键词区分咨询与银行业务。
// 关键词按子串匹配最后一条用户消息，"each" 也会命中 "ach"。
func (r Router) Route(state *State) Route {
	if state == nil || !state.Authenticated {
		return RouteOnboarding
	}
	msg := strings.ToLower(state.LastUserMessage())
	for _, kw := range r.Keywords {
		if strings.Contains(msg, kw) {
			return RouteAdvisory
		}
	}
	return RouteBanking
}
