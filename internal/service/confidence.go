package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
)

// Scorer 根据检索质量和回答校验启发式计算置信度，是输入的纯函数。
type Scorer struct {
	cfg config.ConfidenceConfig
}

// NewScorer 使用给定的检查规则创建 Scorer。
func NewScorer(cfg config.ConfidenceConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score 返回 [0,1] 区间内的置信度。
func (s *Scorer) Score(results []model.SearchResult, answer string) float64 {
	return s.ScoreWithQuery("", results, answer)
}

// ScoreWithQuery 在 Score 的基础上按问题长度判断回答是否过短。
// 基础分为排名第一的分块相似度，每条未通过的检查扣除对应分值。
func (s *Scorer) ScoreWithQuery(query string, results []model.SearchResult, answer string) float64 {
	if len(results) == 0 {
		return 0
	}
	score := results[0].Similarity
	for _, check := range s.cfg.Checks {
		if s.fails(check.Name, query, results, answer) {
			score -= check.Penalty
		}
	}
	return clamp01(score)
}

func (s *Scorer) fails(name, query string, results []model.SearchResult, answer string) bool {
	trimmed := strings.TrimSpace(answer)
	switch name {
	case config.CheckEmptyAnswer:
		return trimmed == ""
	case config.CheckTooShort:
		// 空回答只由 emptyAnswer 扣分
		if trimmed == "" {
			return false
		}
		n := utf8.RuneCountInString(trimmed)
		if n < s.cfg.MinAnswerRunes {
			return true
		}
		q := utf8.RuneCountInString(strings.TrimSpace(query))
		return q > 0 && float64(n) < s.cfg.ShortAnswerRatio*float64(q)
	case config.CheckNoGrounding:
		if trimmed == "" {
			return false
		}
		return !grounded(trimmed, results)
	}
	return false
}

// grounded 判断回答中是否至少有一个长度不小于 2 的词出现在检索到的分块内容里。
func grounded(answer string, results []model.SearchResult) bool {
	tokens := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = strings.ToLower(r.Content)
	}
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		for _, c := range contents {
			if strings.Contains(c, tok) {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
