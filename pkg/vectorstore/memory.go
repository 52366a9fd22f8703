package vectorstore

import (
	"context"
	"sort"
	"sync"

	"admate-rag-go/pkg/log"
)

// scored is a match candidate whose similarity has been computed locally.
type scored struct {
	match Match
	order int
}

// rankMatches scores candidates against the query, drops those below the
// threshold or with a different dimension, and keeps the best limit by
// descending similarity. Equal scores keep candidate order.
func rankMatches(query []float32, candidates []Match, vectors [][]float32, threshold float64, limit int) []Match {
	kept := make([]scored, 0, len(candidates))
	for i, m := range candidates {
		sim, err := CosineSimilarity(query, vectors[i])
		if err != nil {
			log.Debugf("[VectorStore] 跳过维度不一致的分块 %s: %v", m.ChunkID, err)
			continue
		}
		sim = ClampSimilarity(sim)
		if sim < threshold {
			continue
		}
		m.Similarity = sim
		kept = append(kept, scored{match: m, order: i})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].match.Similarity > kept[j].match.Similarity
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	out := make([]Match, len(kept))
	for i, s := range kept {
		out[i] = s.match
	}
	return out
}

// mergeTop merges two ranked lists into the best limit by descending similarity.
// On equal scores entries of top come first, so batch order is preserved.
func mergeTop(top, batch []Match, limit int) []Match {
	if len(batch) == 0 {
		return top
	}
	merged := make([]Match, 0, len(top)+len(batch))
	merged = append(merged, top...)
	merged = append(merged, batch...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

type memoryRecord struct {
	record Record
	raw    []byte
}

// MemoryStore keeps chunks in process memory. It backs local development and
// the CLI when no database is configured.
type MemoryStore struct {
	dimension int

	mu      sync.RWMutex
	order   []string
	records map[string]memoryRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store pinned to dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]memoryRecord),
	}
}

// Search scans every stored chunk.
func (s *MemoryStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := make([]Match, 0, len(s.order))
	vectors := make([][]float32, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		candidates = append(candidates, Match{
			ChunkID:    rec.record.ChunkID,
			DocumentID: rec.record.DocumentID,
			Content:    rec.record.Content,
			Metadata:   rec.record.Metadata,
			Embedding:  rec.raw,
		})
		vectors = append(vectors, rec.record.Vector)
	}
	s.mu.RUnlock()
	return rankMatches(query, candidates, vectors, threshold, limit), nil
}

// Upsert stores the records, rejecting the whole batch on any dimension mismatch.
func (s *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	if err := ValidateRecords(records, s.dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, ok := s.records[r.ChunkID]; !ok {
			s.order = append(s.order, r.ChunkID)
		}
		vec := append([]float32(nil), r.Vector...)
		r.Vector = vec
		s.records[r.ChunkID] = memoryRecord{record: r, raw: EncodeEmbedding(vec)}
	}
	return nil
}

// DeleteByDocument drops all chunks of documentID.
func (s *MemoryStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, id := range s.order {
		if s.records[id].record.DocumentID == documentID {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
