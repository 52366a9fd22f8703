package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"admate-rag-go/internal/model"
)

// conversationTTL 是会话历史在 Redis 中的保留时间
const conversationTTL = 7 * 24 * time.Hour

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	// AppendMessages 追加消息，只保留最近 limit 条。
	AppendMessages(ctx context.Context, sessionID string, limit int, messages ...model.ChatMessage) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s", sessionID)
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(sessionID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil // No history yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// AppendMessages 在 Redis 中更新对话历史记录，使用 WATCH 事务避免并发覆盖。
func (r *redisConversationRepository) AppendMessages(ctx context.Context, sessionID string, limit int, messages ...model.ChatMessage) error {
	key := conversationKey(sessionID)
	txf := func(tx *redis.Tx) error {
		history := []model.ChatMessage{}
		jsonData, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if err := json.Unmarshal([]byte(jsonData), &history); err != nil {
				return fmt.Errorf("failed to unmarshal conversation history: %w", err)
			}
		}
		history = trimHistory(append(history, messages...), limit)
		data, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation history: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, conversationTTL)
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := r.redisClient.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to set conversation history: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to set conversation history: %w", redis.TxFailedErr)
}

func trimHistory(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}

type memoryConversationRepository struct {
	mu       sync.Mutex
	sessions map[string][]model.ChatMessage
}

// NewMemoryConversationRepository 在未配置 Redis 时使用。
func NewMemoryConversationRepository() ConversationRepository {
	return &memoryConversationRepository{sessions: make(map[string][]model.ChatMessage)}
}

func (r *memoryConversationRepository) GetConversationHistory(_ context.Context, sessionID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.sessions[sessionID]
	out := make([]model.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

func (r *memoryConversationRepository) AppendMessages(_ context.Context, sessionID string, limit int, messages ...model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := append(r.sessions[sessionID], messages...)
	r.sessions[sessionID] = trimHistory(history, limit)
	return nil
}
