// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/pkg/llm"
	"admate-rag-go/pkg/log"
	"admate-rag-go/pkg/metrics"
)

// 非 LLM 生成的回答使用的模型标识
const (
	ModelFallback   = "fallback"
	ModelExtractive = "extractive"
)

// HTMLRenderer 将 markdown 回答渲染为 HTML。
type HTMLRenderer interface {
	HTML(markdown string) string
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	GenerateChatResponse(ctx context.Context, query string) (*model.ChatResponse, error)
}

type chatService struct {
	cfg           config.Provider
	searchService SearchService
	llmClient     llm.Client
	renderer      HTMLRenderer
	metrics       *metrics.Metrics
}

// NewChatService 创建一个新的 ChatService 实例。renderer 与 m 可以为 nil。
func NewChatService(cfg config.Provider, searchService SearchService, llmClient llm.Client, renderer HTMLRenderer, m *metrics.Metrics) ChatService {
	return &chatService{
		cfg:           cfg,
		searchService: searchService,
		llmClient:     llmClient,
		renderer:      renderer,
		metrics:       m,
	}
}

// GenerateChatResponse 协调 RAG 流程：检索上下文，调用 LLM 生成回答，失败时降级。
// 除空问题外，任何提供方错误都不会返回给调用方。
func (s *chatService) GenerateChatResponse(ctx context.Context, query string) (*model.ChatResponse, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}

	// 每个请求只读取一次配置快照
	cfg := s.cfg.Current()

	// 1. 检索上下文
	results, err := s.searchService.SearchSimilarChunks(ctx, query, cfg.RAG.Limit, cfg.RAG.Threshold)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		log.Errorf("[ChatService] 检索失败，返回降级回答: %v", err)
		return s.finish(cfg, start, &model.ChatResponse{
			Answer:  cfg.RAG.UnavailableAnswer,
			Sources: []model.SearchResult{},
			Model:   ModelFallback,
		}), nil
	}

	// 2. 没有相关分块
	if len(results) == 0 {
		log.Infof("[ChatService] 未检索到相关分块, query: '%s'", query)
		return s.finish(cfg, start, &model.ChatResponse{
			Answer:  cfg.RAG.NoResultAnswer,
			Sources: []model.SearchResult{},
			Model:   ModelFallback,
		}), nil
	}

	// 3. 构建 prompt 并调用 LLM，失败时退回抽取式回答
	prompt := BuildPrompt(cfg, query, results)
	resp := &model.ChatResponse{Sources: results}
	answer, err := s.complete(ctx, cfg, prompt)
	if err != nil {
		log.Warnf("[ChatService] LLM 调用失败，使用抽取式回答: %v", err)
		resp.Answer = ExtractiveAnswer(cfg.RAG, results)
		resp.Model = ModelExtractive
	} else {
		resp.Answer = answer
		resp.Model = s.llmClient.Model()
		resp.IsLLMGenerated = true
	}

	// 4. 置信度
	resp.Confidence = NewScorer(cfg.RAG.Confidence).ScoreWithQuery(query, results, resp.Answer)
	return s.finish(cfg, start, resp), nil
}

func (s *chatService) complete(ctx context.Context, cfg *config.Config, prompt string) (string, error) {
	if s.llmClient == nil {
		return "", fmt.Errorf("%w: no llm configured", ErrLLMProvider)
	}
	llmCtx := ctx
	if cfg.LLM.Timeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, cfg.LLM.Timeout)
		defer cancel()
	}

	callStart := time.Now()
	text, err := s.llmClient.Complete(llmCtx, prompt, llm.OptionsFromConfig(cfg.LLM.Generation))
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(llmCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		s.metrics.RecordLLMCall(outcome, time.Since(callStart))
		return "", fmt.Errorf("%w: %w", ErrLLMProvider, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.metrics.RecordLLMCall("empty", time.Since(callStart))
		return "", fmt.Errorf("%w: empty completion", ErrLLMProvider)
	}
	s.metrics.RecordLLMCall("ok", time.Since(callStart))
	return text, nil
}

func (s *chatService) finish(cfg *config.Config, start time.Time, resp *model.ChatResponse) *model.ChatResponse {
	if cfg.Chat.RenderHTML && s.renderer != nil {
		resp.AnswerHTML = s.renderer.HTML(resp.Answer)
	}
	resp.ProcessingTime = time.Since(start)
	s.metrics.RecordChatResponse(resp.Model, resp.IsLLMGenerated, resp.Confidence)
	log.Infof("[ChatService] 回答完成, model: %s, llm: %t, sources: %d, confidence: %.2f, 耗时: %v",
		resp.Model, resp.IsLLMGenerated, len(resp.Sources), resp.Confidence, resp.ProcessingTime)
	return resp
}

// BuildPrompt 由规则、带出处标注的分块内容和用户问题组成 prompt。
func BuildPrompt(cfg *config.Config, query string, results []model.SearchResult) string {
	p := cfg.LLM.Prompt
	var sb strings.Builder
	if p.Rules != "" {
		sb.WriteString(p.Rules)
		sb.WriteString("\n\n")
	}
	sb.WriteString(p.RefStart)
	sb.WriteString("\n")
	sb.WriteString(buildContextText(results, cfg.RAG.MaxContextRunes))
	sb.WriteString(p.RefEnd)
	sb.WriteString("\n\n질문: ")
	sb.WriteString(query)
	sb.WriteString("\n답변:")
	return sb.String()
}

func buildContextText(results []model.SearchResult, maxRunes int) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[출처 %d] %s\n%s\n\n", i+1, r.DocumentTitle, model.TruncateRunes(r.Content, maxRunes))
	}
	return sb.String()
}

// ExtractiveAnswer 返回相似度最高的分块内容（截断）并加上免责提示。
func ExtractiveAnswer(cfg config.RAGConfig, results []model.SearchResult) string {
	top := strings.TrimSpace(results[0].Content)
	excerpt := model.TruncateRunes(top, cfg.ExtractiveMaxRunes)
	if cfg.ExtractivePrefix == "" {
		return excerpt
	}
	return cfg.ExtractivePrefix + "\n\n" + excerpt
}
