package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"admate-rag-go/internal/model"
	"admate-rag-go/pkg/log"
)

// MySQLStore keeps chunks in the document_chunks table and scores them in
// process. It suits FAQ-sized corpora where a dedicated vector index is overkill.
type MySQLStore struct {
	db        *gorm.DB
	dimension int
	batchSize int
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore creates a brute-force store over db.
func NewMySQLStore(db *gorm.DB, dimension, batchSize int) *MySQLStore {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &MySQLStore{db: db, dimension: dimension, batchSize: batchSize}
}

// Search scans chunks of the query's dimension in batches and keeps only the
// running best limit, so memory stays bounded by batch size plus limit.
// Rows written before dimensions were recorded (dimension = 0) are scanned too.
func (s *MySQLStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]Match, error) {
	var (
		top  []Match
		rows []model.DocumentChunk
	)
	result := s.db.WithContext(ctx).
		Where("dimension = ? OR dimension = 0", len(query)).
		Order("id").
		FindInBatches(&rows, s.batchSize, func(tx *gorm.DB, batch int) error {
			candidates := make([]Match, 0, len(rows))
			vectors := make([][]float32, 0, len(rows))
			for _, row := range rows {
				raw := json.RawMessage(row.Embedding)
				vec, err := ParseEmbedding(raw)
				if err != nil {
					log.Warnf("[MySQLStore] 分块 %s 的向量无法解析: %v", row.ChunkID, err)
					continue
				}
				candidates = append(candidates, Match{
					ChunkID:    row.ChunkID,
					DocumentID: row.DocumentID,
					Content:    row.Content,
					Metadata:   decodeMetadata(row.Metadata),
					Embedding:  raw,
				})
				vectors = append(vectors, vec)
			}
			top = mergeTop(top, rankMatches(query, candidates, vectors, threshold, limit), limit)
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("scan document_chunks: %w", result.Error)
	}
	return top, nil
}

// Upsert replaces chunks by chunk id.
func (s *MySQLStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ValidateRecords(records, s.dimension); err != nil {
		return err
	}
	rows := make([]model.DocumentChunk, 0, len(records))
	for _, r := range records {
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, model.DocumentChunk{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Embedding:  string(EncodeEmbedding(r.Vector)),
			Model:      r.Model,
			Dimension:  len(r.Vector),
			Metadata:   meta,
		})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document_id", "chunk_index", "content", "embedding", "model", "dimension", "metadata"}),
		}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return fmt.Errorf("upsert document_chunks: %w", err)
	}
	return nil
}

// DeleteByDocument removes the chunks of documentID.
func (s *MySQLStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}

func encodeMetadata(meta map[string]interface{}) (datatypes.JSON, error) {
	if len(meta) == 0 {
		return datatypes.JSON("{}"), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode chunk metadata: %w", err)
	}
	return datatypes.JSON(b), nil
}

func decodeMetadata(raw datatypes.JSON) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return meta
}
