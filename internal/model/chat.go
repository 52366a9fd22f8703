package model

import (
	"math"
	"time"
	"unicode/utf8"
)

// SearchResult 是一次检索产生的临时结果，不持久化。
// Similarity 为 [0,1] 区间内的余弦相似度。
type SearchResult struct {
	ChunkID       string                 `json:"chunkId"`
	DocumentID    string                 `json:"documentId"`
	ChunkIndex    int                    `json:"chunkIndex"`
	Content       string                 `json:"content"`
	Similarity    float64                `json:"similarity"`
	DocumentTitle string                 `json:"documentTitle"`
	DocumentURL   string                 `json:"documentUrl,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ChatResponse 是回答组装的内部结果，所有比例值都在 [0,1] 区间内。
type ChatResponse struct {
	Answer         string
	AnswerHTML     string
	Sources        []SearchResult
	Confidence     float64
	ProcessingTime time.Duration
	Model          string
	IsLLMGenerated bool
}

// SourceDTO 是返回给前端的引用来源。
type SourceDTO struct {
	ChunkID    string `json:"chunkId"`
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Similarity int    `json:"similarity"`
	URL        string `json:"url,omitempty"`
}

// ChatResponseDTO 是 POST /chat 的响应体，比例值在这里才转换为 0-100 的整数百分比。
type ChatResponseDTO struct {
	Answer           string      `json:"answer"`
	AnswerHTML       string      `json:"answerHtml,omitempty"`
	Sources          []SourceDTO `json:"sources"`
	Confidence       int         `json:"confidence"`
	ProcessingTimeMs int64       `json:"processingTimeMs"`
	Model            string      `json:"model"`
	IsLLMGenerated   bool        `json:"isLLMGenerated"`
	SessionID        string      `json:"sessionId,omitempty"`
}

// ToDTO 将内部响应转换为对外格式，previewRunes 为来源内容预览的最大字符数。
func (r *ChatResponse) ToDTO(previewRunes int) ChatResponseDTO {
	sources := make([]SourceDTO, 0, len(r.Sources))
	for _, s := range r.Sources {
		sources = append(sources, SourceDTO{
			ChunkID:    s.ChunkID,
			DocumentID: s.DocumentID,
			Title:      s.DocumentTitle,
			Content:    TruncateRunes(s.Content, previewRunes),
			Similarity: Percent(s.Similarity),
			URL:        s.DocumentURL,
		})
	}
	ms := r.ProcessingTime.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return ChatResponseDTO{
		Answer:           r.Answer,
		AnswerHTML:       r.AnswerHTML,
		Sources:          sources,
		Confidence:       Percent(r.Confidence),
		ProcessingTimeMs: ms,
		Model:            r.Model,
		IsLLMGenerated:   r.IsLLMGenerated,
	}
}

// Percent 将 [0,1] 的比例四舍五入为 0-100 的整数，越界值会被截断。
func Percent(ratio float64) int {
	if math.IsNaN(ratio) || ratio <= 0 {
		return 0
	}
	if ratio >= 1 {
		return 100
	}
	return int(math.Round(ratio * 100))
}

// TruncateRunes 按字符截断文本，超出时追加 "..."。max <= 0 表示不截断。
func TruncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
