// Package policy answers questions about bank rules by ranking stored policy
// documents against the query embedding. When no embedder is configured it
// degrades to keyword matching over the policy metadata.
package policy

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"IVA-Bank/internal/bank"
	"IVA-Bank/internal/embedding"
	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/pkg/logger"
)

// DefaultTopK 为默认返回的政策条数。
const DefaultTopK = 3

// Service 提供政策检索与初始化能力。
type Service struct {
	store    bank.PolicyStore
	embedder embedding.Embedder
	topK     int
	logger   *slog.Logger
}

// Option 定义可选配置。
type Option func(*Service)

// WithEmbedder 指定向量引擎。
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *Service) {
		s.embedder = e
	}
}

// WithTopK 指定默认返回条数。
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewService 创建政策检索服务。
func NewService(store bank.PolicyStore, opts ...Option) *Service {
	s := &Service{store: store, topK: DefaultTopK, logger: logger.Named("policy")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TopK 返回默认检索条数。
func (s *Service) TopK() int { return s.topK }

type scored struct {
	doc   bank.PolicyDocument
	score float64
}

// Search 返回与查询最接近的 k 条政策。k<=0 时使用默认值。
func (s *Service) Search(ctx context.Context, query string, k int) ([]bank.PolicyDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "search query is required")
	}
	if k <= 0 {
		k = s.topK
	}
	docs, err := s.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err == nil {
			if ranked := rankByDistance(docs, vec); len(ranked) > 0 {
				return limit(ranked, k), nil
			}
		} else {
			s.logger.Warn("查询向量化失败，退回关键词匹配", slog.Any("error", err))
		}
	}
	return limit(rankByKeywords(docs, query), k), nil
}

// rankByDistance 按 L2 距离升序排列，维度不一致或缺少向量的文档会被跳过。
func rankByDistance(docs []bank.PolicyDocument, vec []float32) []bank.PolicyDocument {
	results := make([]scored, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		dist, err := embedding.L2Distance(doc.Embedding, vec)
		if err != nil {
			continue
		}
		results = append(results, scored{doc: doc, score: dist})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score < results[j].score })
	out := make([]bank.PolicyDocument, 0, len(results))
	for _, r := range results {
		out = append(out, r.doc)
	}
	return out
}

func limit(docs []bank.PolicyDocument, k int) []bank.PolicyDocument {
	if len(docs) > k {
		return docs[:k]
	}
	return docs
}
