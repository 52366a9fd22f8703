// Package model 定义了与数据库表对应的 Go 结构体以及检索与对话的数据模型。
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DocumentType 表示文档来源类型。
type DocumentType string

const (
	DocumentTypeFile DocumentType = "file"
	DocumentTypeURL  DocumentType = "url"
)

// DocumentStatus 表示文档在索引流程中的状态。
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusIndexed    DocumentStatus = "indexed"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Valid 判断状态值是否合法。
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusIndexed, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// Document 对应于 documents 表。检索核心只读取它，从不修改。
type Document struct {
	ID         string         `gorm:"type:varchar(191);primaryKey" json:"id"`
	Title      string         `gorm:"type:varchar(255);not null" json:"title"`
	Type       DocumentType   `gorm:"type:varchar(16);not null;default:file" json:"type"`
	Status     DocumentStatus `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	URL        string         `gorm:"type:varchar(1024)" json:"url"`
	ObjectKey  string         `gorm:"type:varchar(512)" json:"objectKey,omitempty"`
	ChunkCount int            `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 对应于 document_chunks 表。
// Embedding 以 JSON 文本保存，Model 与 Dimension 记录生成它的模型。
type DocumentChunk struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	ChunkID    string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"chunkId"`
	DocumentID string         `gorm:"type:varchar(191);index;not null" json:"documentId"`
	ChunkIndex int            `gorm:"not null" json:"chunkIndex"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	Embedding  string         `gorm:"type:longtext" json:"-"`
	Model      string         `gorm:"type:varchar(100)" json:"model"`
	Dimension  int            `gorm:"not null;default:0;index" json:"dimension"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// chunkDelimiter 分隔分块 ID 中的文档 ID 与序号。
const chunkDelimiter = "_chunk_"

// BuildChunkID 按 "<documentId>_chunk_<N>" 生成分块 ID。
func BuildChunkID(documentID string, index int) string {
	return documentID + chunkDelimiter + strconv.Itoa(index)
}

// ParseChunkID 从分块 ID 中还原文档 ID 与序号。
// 文档 ID 自身可能包含分隔符，因此按最后一次出现切分。
func ParseChunkID(chunkID string) (documentID string, index int, err error) {
	pos := strings.LastIndex(chunkID, chunkDelimiter)
	if pos <= 0 {
		return "", 0, fmt.Errorf("invalid chunk id %q", chunkID)
	}
	index, err = strconv.Atoi(chunkID[pos+len(chunkDelimiter):])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("invalid chunk index in %q", chunkID)
	}
	return chunkID[:pos], index, nil
}
