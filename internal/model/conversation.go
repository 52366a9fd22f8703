// Package model 包含了应用的数据模型定义。
package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// 仅 assistant 消息携带
	Confidence int    `json:"confidence,omitempty"`
	Model      string `json:"model,omitempty"`
}
