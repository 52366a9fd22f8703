package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgChunk is the document_chunks row layout on Postgres with the vector extension.
type pgChunk struct {
	ChunkID    string          `gorm:"column:chunk_id;primaryKey"`
	DocumentID string          `gorm:"column:document_id;index"`
	ChunkIndex int             `gorm:"column:chunk_index"`
	Content    string          `gorm:"column:content"`
	Embedding  pgvector.Vector `gorm:"column:embedding;type:vector"`
	Model      string          `gorm:"column:model"`
	Metadata   datatypes.JSON  `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (pgChunk) TableName() string { return "document_chunks" }

// pgMatchRow receives both the inline query and the match function result.
// A match function is not required to return the embedding column.
type pgMatchRow struct {
	ChunkID    string         `gorm:"column:chunk_id"`
	DocumentID string         `gorm:"column:document_id"`
	Content    string         `gorm:"column:content"`
	Metadata   datatypes.JSON `gorm:"column:metadata"`
	Embedding  *string        `gorm:"column:embedding"`
	Similarity float64        `gorm:"column:similarity"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// PgVectorStore searches with the pgvector cosine distance operator.
type PgVectorStore struct {
	db            *gorm.DB
	dimension     int
	matchFunction string
}

var _ Store = (*PgVectorStore)(nil)

// NewPgVectorStore creates a pgvector store. When matchFunction is non-empty,
// searches call it as match_fn(query_embedding, match_threshold, match_count).
func NewPgVectorStore(db *gorm.DB, dimension int, matchFunction string) (*PgVectorStore, error) {
	if matchFunction != "" && !identPattern.MatchString(matchFunction) {
		return nil, fmt.Errorf("invalid match function name %q", matchFunction)
	}
	return &PgVectorStore{db: db, dimension: dimension, matchFunction: matchFunction}, nil
}

// inlineSearchSQL only compares vectors of the query's dimension; the CTE is
// materialized so the distance operator never sees a mismatched row.
const inlineSearchSQL = `
WITH candidates AS MATERIALIZED (
	SELECT chunk_id, document_id, content, metadata, embedding
	FROM document_chunks
	WHERE vector_dims(embedding) = ?
)
SELECT chunk_id, document_id, content, metadata, embedding::text AS embedding,
	1 - (embedding <=> ?) AS similarity
FROM candidates
WHERE 1 - (embedding <=> ?) >= ?
ORDER BY embedding <=> ?
LIMIT ?`

// Search runs the similarity query. Cosine distance d maps to similarity 1-d.
func (s *PgVectorStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]Match, error) {
	vec := pgvector.NewVector(query)
	var rows []pgMatchRow
	var err error
	if s.matchFunction != "" {
		err = s.db.WithContext(ctx).
			Raw(fmt.Sprintf("SELECT * FROM %s(?, ?, ?)", s.matchFunction), vec, threshold, limit).
			Scan(&rows).Error
	} else {
		err = s.db.WithContext(ctx).
			Raw(inlineSearchSQL, len(query), vec, vec, threshold, vec, limit).
			Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		m := Match{
			ChunkID:    row.ChunkID,
			DocumentID: row.DocumentID,
			Content:    row.Content,
			Similarity: ClampSimilarity(row.Similarity),
			Metadata:   decodeMetadata(row.Metadata),
		}
		if row.Embedding != nil {
			m.Embedding = json.RawMessage(*row.Embedding)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Upsert replaces chunks by chunk id.
func (s *PgVectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ValidateRecords(records, s.dimension); err != nil {
		return err
	}
	rows := make([]pgChunk, 0, len(records))
	for _, r := range records {
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, pgChunk{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Embedding:  pgvector.NewVector(r.Vector),
			Model:      r.Model,
			Metadata:   meta,
		})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document_id", "chunk_index", "content", "embedding", "model", "metadata"}),
		}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return fmt.Errorf("upsert pgvector chunks: %w", err)
	}
	return nil
}

// DeleteByDocument removes the chunks of documentID.
func (s *PgVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&pgChunk{}).Error
}
