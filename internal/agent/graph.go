package agent

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/pkg/logger"
)

// Graph 是条件入口 + 每条路由一个节点的单跳图，节点执行后直接结束。
type Graph struct {
	router  Router
	nodes   map[Route]Node
	observe func(Route)
}

// NewGraph 创建图。
func NewGraph(router Router, nodes map[Route]Node) *Graph {
	return &Graph{router: router, nodes: nodes}
}

// Invoke 选择路由并执行对应节点一次。
func (g *Graph) Invoke(ctx context.Context, state *State) (*State, error) {
	route := g.router.Route(state)
	node, ok := g.nodes[route]
	if !ok || node == nil {
		return state, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown route %q", route))
	}
	state.Route = route

	attrs := []any{slog.String("route", string(route)), slog.Bool("authenticated", state.Authenticated)}
	if state.Customer != nil {
		attrs = append(attrs, slog.Int64("customer_id", state.Customer.ID))
	}
	logger.Audit().Info("agent_routed", attrs...)
	if g.observe != nil {
		g.observe(route)
	}
	return state, node.Run(ctx, state)
}
