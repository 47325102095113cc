package policy

import (
	"sort"
	"strings"
	"unicode"

	"IVA-Bank/internal/bank"
)

// rankByKeywords 按查询命中的关键词数量降序排列，未命中的文档不返回。
// 关键词来自 metadata 的 keywords、category 与 title 字段。
func rankByKeywords(docs []bank.PolicyDocument, query string) []bank.PolicyDocument {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	results := make([]scored, 0, len(docs))
	for _, doc := range docs {
		hits := 0
		for _, kw := range keywordsOf(doc) {
			if matchesKeyword(tokens, kw) {
				hits++
			}
		}
		if hits > 0 {
			results = append(results, scored{doc: doc, score: float64(hits)})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	out := make([]bank.PolicyDocument, 0, len(results))
	for _, r := range results {
		out = append(out, r.doc)
	}
	return out
}

func keywordsOf(doc bank.PolicyDocument) []string {
	var out []string
	for _, key := range []string{"keywords", "category", "title"} {
		for _, kw := range strings.Split(doc.Metadata[key], ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

// matchesKeyword 多词关键词要求每个词都出现在查询中。
func matchesKeyword(tokens map[string]struct{}, keyword string) bool {
	words := strings.Fields(keyword)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if _, ok := tokens[w]; ok {
			continue
		}
		if _, ok := tokens[w+"s"]; ok {
			continue
		}
		return false
	}
	return true
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}
