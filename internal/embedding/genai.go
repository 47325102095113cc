package embedding

import (
	"context"

	"google.golang.org/genai"

	xerrors "IVA-Bank/internal/errors"
)

// GenAIEngine 使用 Google GenAI 的 EmbedContent 生成向量。
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEngine 创建 GenAI 向量引擎。taskType 为空时使用 SEMANTIC_SIMILARITY。
func NewGenAIEngine(ctx context.Context, apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "GenAI API key 不能为空")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建 GenAI 客户端失败")
	}
	return &GenAIEngine{client: client, model: model, taskType: taskType}, nil
}

// Name 实现 Embedder。
func (e *GenAIEngine) Name() string { return "genai/" + e.model }

// Embed 实现 Embedder。
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: e.taskType,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "GenAI 向量生成失败")
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "GenAI 未返回向量")
	}
	return result.Embeddings[0].Values, nil
}
