package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
)

// ConversationService 定义了对话业务逻辑的接口。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	// RecordExchange 保存一问一答。
	RecordExchange(ctx context.Context, sessionID, question string, resp *model.ChatResponse) error
}

type conversationService struct {
	cfg  config.Provider
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(cfg config.Provider, repo repository.ConversationRepository) ConversationService {
	return &conversationService{cfg: cfg, repo: repo}
}

// GetConversationHistory 获取会话的消息历史。
func (s *conversationService) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrInvalidInput)
	}
	return s.repo.GetConversationHistory(ctx, sessionID)
}

func (s *conversationService) RecordExchange(ctx context.Context, sessionID, question string, resp *model.ChatResponse) error {
	if sessionID == "" || resp == nil {
		return nil
	}
	now := time.Now()
	return s.repo.AppendMessages(ctx, sessionID, s.cfg.Current().Chat.HistoryLimit,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{
			Role:       "assistant",
			Content:    resp.Answer,
			Timestamp:  now,
			Confidence: model.Percent(resp.Confidence),
			Model:      resp.Model,
		},
	)
}
