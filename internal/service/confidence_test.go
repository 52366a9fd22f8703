package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
)

func TestScorer(t *testing.T) {
	scorer := NewScorer(config.Default().RAG.Confidence)
	results := []model.SearchResult{
		{Content: "광고 승인은 보통 24시간 이내에 완료됩니다.", Similarity: 0.8},
		{Content: "결제 수단 안내", Similarity: 0.5},
	}

	tests := []struct {
		name   string
		query  string
		result []model.SearchResult
		answer string
		want   float64
	}{
		{"no results", "광고", nil, "아무 답변", 0},
		{"grounded answer keeps top similarity", "광고 승인 기간", results, "광고 승인은 보통 24시간 이내에 완료됩니다.", 0.8},
		{"empty answer", "광고", results, "  ", 0},
		{"short and ungrounded", "", results, "네", 0.3},
		{"ungrounded answer", "", results, "Completely unrelated sentence", 0.5},
		{"short relative to question", "광고 승인 기간이 얼마나 걸리는지 자세히 알려주세요", results, "광고 승인은 24시간", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.ScoreWithQuery(tt.query, tt.result, tt.answer)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestScorer_ConfigurableChecks(t *testing.T) {
	results := []model.SearchResult{{Content: "본문", Similarity: 0.7}}

	none := NewScorer(config.ConfidenceConfig{})
	assert.InDelta(t, 0.7, none.Score(results, ""), 1e-9)

	harsh := NewScorer(config.ConfidenceConfig{
		Checks: []config.ConfidenceCheck{{Name: config.CheckNoGrounding, Penalty: 0.9}},
	})
	assert.InDelta(t, 0, harsh.Score(results, "unrelated"), 1e-9)
	assert.InDelta(t, 0.7, harsh.Score(results, "본문 내용"), 1e-9)
}

func TestScorer_Pure(t *testing.T) {
	scorer := NewScorer(config.Default().RAG.Confidence)
	results := []model.SearchResult{{Content: "광고 정책", Similarity: 0.66}}
	a := scorer.Score(results, "광고 정책 안내입니다")
	b := scorer.Score(results, "광고 정책 안내입니다")
	assert.Equal(t, a, b)
}
