// Package embedding turns text into dense vectors for policy retrieval.
// Engines talk to a local Ollama server or to the Google GenAI API; a
// Cache can be layered on top to avoid re-embedding repeated queries.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"

	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/pkg/logger"
)

// Embedder 将文本转换为向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Name 返回引擎与模型标识，用于缓存键区分。
	Name() string
}

// Cache 存储查询文本对应的向量。
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// CachedEmbedder 在 Embedder 前增加缓存，缓存故障只记录日志不影响检索。
type CachedEmbedder struct {
	inner Embedder
	cache Cache
}

// WithCache 返回带缓存的 Embedder。cache 为 nil 时直接返回 inner。
func WithCache(inner Embedder, cache Cache) Embedder {
	if cache == nil {
		return inner
	}
	return &CachedEmbedder{inner: inner, cache: cache}
}

// Name 实现 Embedder。
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Embed 实现 Embedder。
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.inner.Name(), text)
	if vec, ok, err := c.cache.Get(ctx, key); err != nil {
		logger.Named("embedding").Warn("读取向量缓存失败", "error", err)
	} else if ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec); err != nil {
		logger.Named("embedding").Warn("写入向量缓存失败", "error", err)
	}
	return vec, nil
}

// CacheKey 由引擎名与文本摘要组成。
func CacheKey(engine, text string) string {
	sum := sha256.Sum256([]byte(text))
	return engine + ":" + hex.EncodeToString(sum[:16])
}

// L2Distance 计算两个向量的欧氏距离，维度不一致时返回错误。
func L2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "vector dimensions differ")
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
