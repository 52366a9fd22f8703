// Package vectorstore defines the vector search capability used by the retriever
// and its MySQL, pgvector, Elasticsearch and in-memory backends.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when two vectors of different length meet,
	// either at write time or when scoring a stored chunk against a query.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNoEmbedding means a stored chunk carries no embedding at all.
	ErrNoEmbedding = errors.New("no embedding stored")
)

// Store is the vector search capability.
type Store interface {
	// Search returns at most limit matches whose cosine similarity is >= threshold,
	// ordered by descending similarity.
	Search(ctx context.Context, query []float32, threshold float64, limit int) ([]Match, error)
	// Upsert writes chunks, replacing existing ones with the same chunk id.
	// Every vector must have the store's pinned dimension.
	Upsert(ctx context.Context, records []Record) error
	// DeleteByDocument removes every chunk of a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Match is one row of a similarity search.
type Match struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id,omitempty"`
	Content    string                 `json:"content"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	// Embedding is the stored vector as the backend returned it: a JSON array,
	// a JSON-encoded string holding an array, or empty.
	Embedding json.RawMessage `json:"embedding,omitempty"`
}

// Record is a chunk to be written.
type Record struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Vector     []float32
	Model      string
	Metadata   map[string]interface{}
}

// ParseEmbedding decodes a stored embedding in either of its representations.
func ParseEmbedding(raw json.RawMessage) ([]float32, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoEmbedding
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("decode embedding string: %w", err)
		}
		raw = bytes.TrimSpace([]byte(encoded))
		if len(raw) == 0 {
			return nil, ErrNoEmbedding
		}
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("decode embedding array: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrNoEmbedding
	}
	return vec, nil
}

// EncodeEmbedding renders a vector as a JSON array.
func EncodeEmbedding(vec []float32) json.RawMessage {
	b, _ := json.Marshal(vec)
	return b
}

// CosineSimilarity returns the raw cosine similarity in [-1,1].
// Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// ClampSimilarity maps a cosine value onto the canonical [0,1] scale.
// Negative similarity carries no relevance and becomes 0.
func ClampSimilarity(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// ValidateRecords checks every record against the pinned dimension.
func ValidateRecords(records []Record, dimension int) error {
	for _, r := range records {
		if r.ChunkID == "" {
			return errors.New("record without chunk id")
		}
		if len(r.Vector) != dimension {
			return fmt.Errorf("%w: chunk %s has %d, store expects %d", ErrDimensionMismatch, r.ChunkID, len(r.Vector), dimension)
		}
	}
	return nil
}
