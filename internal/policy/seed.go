package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"IVA-Bank/internal/bank"
)

// Defaults 返回内置的三条政策。
func Defaults() []bank.PolicyDocument {
	return []bank.PolicyDocument{
		{
			Content:  "Cheque Clearing Policy: Domestic cheques usually clear within 2 business days. Individual banks may hold funds for up to 5 days for larger amounts.",
			Metadata: map[string]string{"category": "Cheque Clearing", "title": "Cheque Clearing Policy", "keywords": "cheque,check,clearing,deposit,hold"},
		},
		{
			Content:  "ACH Clearing Policy: Standard ACH transfers take 1-3 business days. Same-day ACH is available for most transactions submitted before 10 AM.",
			Metadata: map[string]string{"category": "ACH", "title": "ACH Clearing Policy", "keywords": "ach,same-day,direct deposit,clearing,transfer"},
		},
		{
			Content:  "Fraud Prevention: We use AI-based monitoring. If a transaction is flagged as high-risk, we will send an email alert and hold the process until confirmed.",
			Metadata: map[string]string{"category": "Security", "title": "Fraud Prevention", "keywords": "fraud,security,flagged,alert,suspicious"},
		},
	}
}

type fileEntry struct {
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// LoadFile 从 JSON 文件读取额外的政策条目。
func LoadFile(path string) ([]bank.PolicyDocument, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("政策文件路径不能为空")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析政策文件路径失败: %w", err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取政策文件失败: %w", err)
	}
	defer file.Close()

	var entries []fileEntry
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析政策文件失败: %w", err)
	}
	docs := make([]bank.PolicyDocument, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		meta := map[string]string{}
		if e.Title != "" {
			meta["title"] = e.Title
		}
		if e.Category != "" {
			meta["category"] = e.Category
		}
		if len(e.Keywords) > 0 {
			meta["keywords"] = strings.Join(e.Keywords, ",")
		}
		docs = append(docs, bank.PolicyDocument{Content: strings.TrimSpace(e.Content), Metadata: meta})
	}
	return docs, nil
}

// Seed 在政策表为空时写入 docs（为空则写入默认政策），返回写入条数。
// 配置了向量引擎时同时写入向量。
func (s *Service) Seed(ctx context.Context, docs ...bank.PolicyDocument) (int, error) {
	count, err := s.store.CountPolicies(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("政策已初始化，跳过", slog.Int("count", count))
		return 0, nil
	}
	if len(docs) == 0 {
		docs = Defaults()
	}
	// 先完成全部向量化再一次性写入，失败时不留下部分政策。
	batch := make([]*bank.PolicyDocument, 0, len(docs))
	for i := range docs {
		doc := docs[i]
		if s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, doc.Content)
			if err != nil {
				return 0, fmt.Errorf("向量化政策 %q 失败: %w", doc.Title(), err)
			}
			doc.Embedding = vec
		}
		batch = append(batch, &doc)
	}
	if err := s.store.AddPolicies(ctx, batch); err != nil {
		return 0, err
	}
	s.logger.Info("政策初始化完成", slog.Int("count", len(docs)))
	return len(docs), nil
}
