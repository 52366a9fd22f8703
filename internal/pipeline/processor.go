// Package pipeline 定义了文档索引的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/log"
	"admate-rag-go/pkg/metrics"
	"admate-rag-go/pkg/tasks"
	"admate-rag-go/pkg/vectorstore"
)

// TextReader 从对象存储读取文档原文。
type TextReader interface {
	ReadText(ctx context.Context, objectKey string) (string, error)
}

// Processor 封装了文档索引的所有依赖和逻辑。
type Processor struct {
	cfg             config.Provider
	embeddingClient embedding.Client
	store           vectorstore.Store
	docRepo         repository.DocumentRepository
	texts           TextReader
	metrics         *metrics.Metrics
}

// NewProcessor 创建一个新的 Processor 实例。texts 与 m 可以为 nil。
func NewProcessor(
	cfg config.Provider,
	embeddingClient embedding.Client,
	store vectorstore.Store,
	docRepo repository.DocumentRepository,
	texts TextReader,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		cfg:             cfg,
		embeddingClient: embeddingClient,
		store:           store,
		docRepo:         docRepo,
		texts:           texts,
		metrics:         m,
	}
}

// Process 是文档索引的主函数。任何一个分块的向量维度与部署维度不一致都会使整个文档失败。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentIndexTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, Title: %s", task.DocumentID, task.Title)

	if err := p.docRepo.Upsert(ctx, &model.Document{
		ID:        task.DocumentID,
		Title:     task.Title,
		Type:      documentType(task.Type),
		Status:    model.DocumentStatusProcessing,
		URL:       task.URL,
		ObjectKey: task.ObjectKey,
	}); err != nil {
		return fmt.Errorf("登记文档失败: %w", err)
	}

	chunkCount, err := p.index(ctx, task)
	if err != nil {
		p.metrics.RecordIndexing(string(model.DocumentStatusFailed), 0)
		if statusErr := p.docRepo.UpdateStatus(ctx, task.DocumentID, model.DocumentStatusFailed); statusErr != nil {
			return errors.Join(err, fmt.Errorf("更新文档状态失败: %w", statusErr))
		}
		return err
	}

	if err := p.docRepo.UpdateChunkCount(ctx, task.DocumentID, chunkCount); err != nil {
		return fmt.Errorf("更新分块数失败: %w", err)
	}
	if err := p.docRepo.UpdateStatus(ctx, task.DocumentID, model.DocumentStatusIndexed); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	p.metrics.RecordIndexing(string(model.DocumentStatusIndexed), chunkCount)
	log.Infof("[Processor] 文档处理成功完成, DocumentID: %s, 分块数: %d", task.DocumentID, chunkCount)
	return nil
}

func (p *Processor) index(ctx context.Context, task tasks.DocumentIndexTask) (int, error) {
	cfg := p.cfg.Current()

	// 1. 获取文本
	log.Info("[Processor] 步骤1: 获取文档文本")
	text, err := p.loadText(ctx, task)
	if err != nil {
		log.Errorf("[Processor] 获取文档文本失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return 0, err
	}
	log.Infof("[Processor] 步骤1: 文本获取成功, 内容长度: %d 字符", utf8.RuneCountInString(text))

	// 2. 文本切块
	log.Infof("[Processor] 步骤2: 进行文本分块, chunkSize: %d, chunkOverlap: %d", cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	chunks := splitText(text, cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, DocumentID: %s", task.DocumentID)
		return 0, errors.New("未生成任何文本分块")
	}
	log.Infof("[Processor] 步骤2: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 3. 向量化，全部成功后才写入
	log.Info("[Processor] 步骤3: 开始向量化")
	records := make([]vectorstore.Record, 0, len(chunks))
	for i, chunk := range chunks {
		res, err := p.embeddingClient.CreateEmbedding(ctx, chunk)
		if err != nil {
			log.Errorf("[Processor] 分块 %d 向量化失败, Error: %v", i, err)
			return 0, fmt.Errorf("块 %d 向量化失败: %w", i, err)
		}
		records = append(records, vectorstore.Record{
			ChunkID:    model.BuildChunkID(task.DocumentID, i),
			DocumentID: task.DocumentID,
			ChunkIndex: i,
			Content:    chunk,
			Vector:     res.Vector,
			Model:      res.Model,
			Metadata: map[string]interface{}{
				"title":       task.Title,
				"url":         task.URL,
				"type":        documentType(task.Type),
				"chunk_index": i,
				"dimension":   len(res.Vector),
			},
		})
	}
	if err := vectorstore.ValidateRecords(records, p.embeddingClient.Dimensions()); err != nil {
		log.Errorf("[Processor] 分块向量维度校验失败, DocumentID: %s, Error: %v", task.DocumentID, err)
		return 0, err
	}

	// 4. 替换旧分块
	log.Info("[Processor] 步骤4: 写入向量存储")
	if err := p.store.DeleteByDocument(ctx, task.DocumentID); err != nil {
		return 0, fmt.Errorf("清理旧分块失败: %w", err)
	}
	if err := p.store.Upsert(ctx, records); err != nil {
		log.Errorf("[Processor] 写入向量存储失败, Error: %v", err)
		return 0, fmt.Errorf("写入向量存储失败: %w", err)
	}
	return len(records), nil
}

func (p *Processor) loadText(ctx context.Context, task tasks.DocumentIndexTask) (string, error) {
	text := task.Text
	if text == "" && task.ObjectKey != "" {
		if p.texts == nil {
			return "", fmt.Errorf("对象存储未配置, 无法读取 %s", task.ObjectKey)
		}
		var err error
		text, err = p.texts.ReadText(ctx, task.ObjectKey)
		if err != nil {
			return "", fmt.Errorf("从对象存储读取文本失败: %w", err)
		}
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("文档文本内容为空")
	}
	return text, nil
}

func documentType(t string) model.DocumentType {
	if model.DocumentType(t) == model.DocumentTypeURL {
		return model.DocumentTypeURL
	}
	return model.DocumentTypeFile
}

// splitText 将长文本按指定大小和重叠进行切分。
func splitText(text string, chunkSize int, chunkOverlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkSize <= chunkOverlap {
		// Fallback to simple split if overlap is invalid
		chunkOverlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// InlinePublisher 在未启用 Kafka 时同步处理索引任务。
type InlinePublisher struct {
	Processor *Processor
}

// PublishIndexTask 直接调用 Processor。
func (p InlinePublisher) PublishIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error {
	return p.Processor.Process(ctx, task)
}
