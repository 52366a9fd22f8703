// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"admate-rag-go/internal/model"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// DocumentRepository 定义了文档元数据的操作接口。
type DocumentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Document, error)
	// FindByIDs 批量查询，缺失的 ID 不出现在结果中。
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.Document, error)
	List(ctx context.Context, status model.DocumentStatus) ([]model.Document, error)
	Upsert(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus) error
	UpdateChunkCount(ctx context.Context, id string, count int) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Document, error) {
	result := make(map[string]*model.Document, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, err
	}
	for i := range docs {
		result[docs[i].ID] = &docs[i]
	}
	return result, nil
}

func (r *documentRepository) List(ctx context.Context, status model.DocumentStatus) ([]model.Document, error) {
	var docs []model.Document
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Upsert 按 ID 插入或更新标题、类型、地址与对象键。
func (r *documentRepository) Upsert(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "type", "url", "object_key", "status", "updated_at"}),
	}).Create(doc).Error
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error
}

func (r *documentRepository) UpdateChunkCount(ctx context.Context, id string, count int) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Update("chunk_count", count).Error
}

// memoryDocumentRepository 在未配置数据库时使用（memory 后端与测试）。
type memoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]model.Document
}

// NewMemoryDocumentRepository 创建进程内的 DocumentRepository。
func NewMemoryDocumentRepository() DocumentRepository {
	return &memoryDocumentRepository{docs: make(map[string]model.Document)}
}

func (r *memoryDocumentRepository) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (r *memoryDocumentRepository) FindByIDs(_ context.Context, ids []string) (map[string]*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*model.Document, len(ids))
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			d := doc
			result[id] = &d
		}
	}
	return result, nil
}

func (r *memoryDocumentRepository) List(_ context.Context, status model.DocumentStatus) ([]model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := make([]model.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		if status == "" || doc.Status == status {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (r *memoryDocumentRepository) Upsert(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.docs[doc.ID]; ok {
		doc.CreatedAt = existing.CreatedAt
		doc.ChunkCount = existing.ChunkCount
	} else if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.Status == "" {
		doc.Status = model.DocumentStatusPending
	}
	doc.UpdatedAt = now
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memoryDocumentRepository) UpdateStatus(_ context.Context, id string, status model.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.UpdatedAt = time.Now()
	r.docs[id] = doc
	return nil
}

func (r *memoryDocumentRepository) UpdateChunkCount(_ context.Context, id string, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.ChunkCount = count
	r.docs[id] = doc
	return nil
}
