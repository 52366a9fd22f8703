package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/log"
	"admate-rag-go/pkg/metrics"
	"admate-rag-go/pkg/vectorstore"
)

// untitledDocument 是找不到文档标题时的兜底显示
const untitledDocument = "제목 없음"

// SearchService 定义了向量检索操作的接口。
type SearchService interface {
	SearchSimilarChunks(ctx context.Context, query string, limit int, threshold float64) ([]model.SearchResult, error)
}

type searchService struct {
	cfg      config.Provider
	embedder embedding.Client
	store    vectorstore.Store
	docRepo  repository.DocumentRepository
	metrics  *metrics.Metrics
}

// NewSearchService 创建一个新的 SearchService 实例。m 可以为 nil。
func NewSearchService(cfg config.Provider, embedder embedding.Client, store vectorstore.Store, docRepo repository.DocumentRepository, m *metrics.Metrics) SearchService {
	return &searchService{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		docRepo:  docRepo,
		metrics:  m,
	}
}

// SearchSimilarChunks 将查询向量化，检索相似分块，过滤维度不一致的分块，
// 按相似度降序返回最多 limit 条结果并补全文档标题。
func (s *searchService) SearchSimilarChunks(ctx context.Context, query string, limit int, threshold float64) ([]model.SearchResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidInput, limit)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be within [0,1], got %v", ErrInvalidInput, threshold)
	}

	cfg := s.cfg.Current()

	// 1. 查询向量化（带超时）
	queryVector, err := s.embedQuery(ctx, cfg, query)
	if err != nil {
		s.metrics.RecordRetrievalError("embedding")
		return nil, err
	}
	log.Debugf("[SearchService] 查询向量化完成, model: %s, dimension: %d", s.embedder.Model(), len(queryVector))

	// 2. 向量检索
	matches, err := s.store.Search(ctx, queryVector, threshold, limit)
	if err != nil {
		s.metrics.RecordRetrievalError("vector_store")
		return nil, fmt.Errorf("%w: %w", ErrVectorStore, err)
	}

	// 3. 过滤维度不一致与低于阈值的分块，排序截断
	kept, mismatched := filterMatches(matches, len(queryVector), threshold)
	s.metrics.RecordDimensionMismatch(mismatched)
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}

	// 4. 组装结果并补全文档信息
	results := s.buildResults(ctx, kept)
	s.metrics.RecordRetrieval(time.Since(start), len(results))
	log.Infof("[SearchService] 检索完成, query: '%s', 候选: %d, 返回: %d, 耗时: %v", query, len(matches), len(results), time.Since(start))
	return results, nil
}

func (s *searchService) embedQuery(ctx context.Context, cfg *config.Config, query string) ([]float32, error) {
	embedCtx := ctx
	if cfg.Embedding.Timeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, cfg.Embedding.Timeout)
		defer cancel()
	}

	res, err := s.embedder.CreateEmbedding(embedCtx, query)
	if err != nil {
		log.Errorf("[SearchService] 查询向量化失败: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
	}
	if res == nil || len(res.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbeddingProvider)
	}
	// 部署固定了维度时，提供方返回其他维度视为配置错误
	if pinned := s.embedder.Dimensions(); pinned > 0 && len(res.Vector) != pinned {
		log.Errorf("[SearchService] 查询向量维度 %d 与部署维度 %d 不一致", len(res.Vector), pinned)
		return nil, fmt.Errorf("%w: %w: got %d, want %d", ErrEmbeddingProvider, vectorstore.ErrDimensionMismatch, len(res.Vector), pinned)
	}
	return res.Vector, nil
}

// filterMatches 排除存储向量维度与查询不一致的分块，以及低于阈值的分块，并将相似度收敛到 [0,1]。
func filterMatches(matches []vectorstore.Match, dimension int, threshold float64) (kept []vectorstore.Match, mismatched int) {
	kept = make([]vectorstore.Match, 0, len(matches))
	for _, m := range matches {
		if !dimensionMatches(m, dimension) {
			log.Warnw("[SearchService] 分块向量维度与查询不一致，已排除", "chunkId", m.ChunkID, "queryDimension", dimension)
			mismatched++
			continue
		}
		m.Similarity = vectorstore.ClampSimilarity(m.Similarity)
		if m.Similarity < threshold {
			continue
		}
		kept = append(kept, m)
	}
	return kept, mismatched
}

func dimensionMatches(m vectorstore.Match, dimension int) bool {
	vec, err := vectorstore.ParseEmbedding(m.Embedding)
	if err == nil {
		return len(vec) == dimension
	}
	if !errors.Is(err, vectorstore.ErrNoEmbedding) {
		log.Warnw("[SearchService] 无法解析分块向量", "chunkId", m.ChunkID, "error", err)
		return false
	}
	// 没有存储向量时退回到元数据里记录的维度
	if d, ok := metadataInt(m.Metadata, "dimension"); ok {
		return d == dimension
	}
	return true
}

func (s *searchService) buildResults(ctx context.Context, matches []vectorstore.Match) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(matches))
	ids := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		r := model.SearchResult{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Content:    m.Content,
			Similarity: m.Similarity,
			Metadata:   m.Metadata,
		}
		if docID, idx, err := model.ParseChunkID(m.ChunkID); err == nil {
			r.ChunkIndex = idx
			if r.DocumentID == "" {
				r.DocumentID = docID
			}
		} else {
			log.Warnw("[SearchService] 分块 ID 格式异常", "chunkId", m.ChunkID)
		}
		if r.DocumentID != "" {
			if _, ok := seen[r.DocumentID]; !ok {
				seen[r.DocumentID] = struct{}{}
				ids = append(ids, r.DocumentID)
			}
		}
		results = append(results, r)
	}

	var docs map[string]*model.Document
	if len(ids) > 0 && s.docRepo != nil {
		var err error
		docs, err = s.docRepo.FindByIDs(ctx, ids)
		if err != nil {
			log.Errorf("[SearchService] 批量查询文档信息失败, 使用分块元数据兜底: %v", err)
			docs = nil
		}
	}

	for i := range results {
		r := &results[i]
		if doc, ok := docs[r.DocumentID]; ok && doc != nil {
			r.DocumentTitle = doc.Title
			r.DocumentURL = doc.URL
		}
		if r.DocumentTitle == "" {
			r.DocumentTitle = metadataString(r.Metadata, "title")
		}
		if r.DocumentURL == "" {
			r.DocumentURL = metadataString(r.Metadata, "url")
		}
		if r.DocumentTitle == "" {
			r.DocumentTitle = untitledDocument
		}
	}
	return results
}

func metadataString(meta map[string]interface{}, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metadataInt(meta map[string]interface{}, key string) (int, bool) {
	switch v := meta[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}
