package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
	"admate-rag-go/pkg/log"
	"admate-rag-go/pkg/tasks"
)

// downloadURLExpiry 是文档原文下载链接的有效期
const downloadURLExpiry = time.Hour

// IndexTaskPublisher 投递文档索引任务（Kafka 或进程内处理）。
type IndexTaskPublisher interface {
	PublishIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error
}

// TextObjectStore 保存文档原文。
type TextObjectStore interface {
	PutText(ctx context.Context, objectKey, text string) error
	PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// DocumentDTO 在文档信息上附加下载链接。
type DocumentDTO struct {
	model.Document
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// IndexRequest 描述一份待索引的纯文本文档。
type IndexRequest struct {
	// ID 为空时自动生成
	ID    string             `json:"id"`
	Title string             `json:"title"`
	Type  model.DocumentType `json:"type"`
	URL   string             `json:"url"`
	Text  string             `json:"text"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	ListDocuments(ctx context.Context, status string) ([]model.Document, error)
	GetDocument(ctx context.Context, id string) (*DocumentDTO, error)
	Reindex(ctx context.Context, id string) error
	Submit(ctx context.Context, req IndexRequest) (*model.Document, error)
}

type documentService struct {
	repo      repository.DocumentRepository
	publisher IndexTaskPublisher
	objects   TextObjectStore
}

// NewDocumentService 创建一个新的 DocumentService 实例。publisher 与 objects 可以为 nil。
func NewDocumentService(repo repository.DocumentRepository, publisher IndexTaskPublisher, objects TextObjectStore) DocumentService {
	return &documentService{repo: repo, publisher: publisher, objects: objects}
}

func (s *documentService) ListDocuments(ctx context.Context, status string) ([]model.Document, error) {
	st := model.DocumentStatus(status)
	if st != "" && !st.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.repo.List(ctx, st)
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*DocumentDTO, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := &DocumentDTO{Document: *doc}
	if doc.ObjectKey != "" && s.objects != nil {
		u, err := s.objects.PresignedURL(ctx, doc.ObjectKey, downloadURLExpiry)
		if err != nil {
			log.Warnf("[DocumentService] 生成下载链接失败, id: %s, err: %v", id, err)
		} else {
			dto.DownloadURL = u
		}
	}
	return dto, nil
}

// Reindex 重新投递已存储原文的文档。
func (s *documentService) Reindex(ctx context.Context, id string) error {
	if s.publisher == nil {
		return ErrIndexingDisabled
	}
	doc, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if doc.ObjectKey == "" {
		return fmt.Errorf("%w: document %s has no stored text", ErrInvalidInput, id)
	}
	if err := s.repo.UpdateStatus(ctx, id, model.DocumentStatusPending); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	task := tasks.DocumentIndexTask{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Type:       string(doc.Type),
		URL:        doc.URL,
		ObjectKey:  doc.ObjectKey,
	}
	if err := s.publisher.PublishIndexTask(ctx, task); err != nil {
		return fmt.Errorf("publish index task: %w", err)
	}
	log.Infof("[DocumentService] 已投递重建索引任务, id: %s", id)
	return nil
}

// Submit 登记文档并投递索引任务。配置了对象存储时原文先写入对象存储。
func (s *documentService) Submit(ctx context.Context, req IndexRequest) (*model.Document, error) {
	if s.publisher == nil {
		return nil, ErrIndexingDisabled
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: document text is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: document title is empty", ErrInvalidInput)
	}
	if req.Type == "" {
		req.Type = model.DocumentTypeFile
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	doc := &model.Document{
		ID:     req.ID,
		Title:  req.Title,
		Type:   req.Type,
		Status: model.DocumentStatusPending,
		URL:    req.URL,
	}
	task := tasks.DocumentIndexTask{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Type:       string(doc.Type),
		URL:        doc.URL,
	}
	if s.objects != nil {
		doc.ObjectKey = fmt.Sprintf("documents/%s.txt", doc.ID)
		if err := s.objects.PutText(ctx, doc.ObjectKey, req.Text); err != nil {
			return nil, err
		}
		task.ObjectKey = doc.ObjectKey
	} else {
		task.Text = req.Text
	}

	if err := s.repo.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	if err := s.publisher.PublishIndexTask(ctx, task); err != nil {
		return nil, fmt.Errorf("publish index task: %w", err)
	}
	log.Infof("[DocumentService] 文档已登记并投递索引任务, id: %s, title: %s", doc.ID, doc.Title)
	return doc, nil
}

func (s *documentService) find(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}
