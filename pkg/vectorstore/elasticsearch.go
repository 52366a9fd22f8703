package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"admate-rag-go/pkg/log"
)

// esChunk is the indexed document layout. The index mapping lives in pkg/es.
type esChunk struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Content    string                 `json:"content"`
	Vector     []float32              `json:"vector"`
	Model      string                 `json:"model"`
	Dimension  int                    `json:"dimension"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ElasticsearchStore runs approximate kNN on a dense_vector field with cosine similarity.
type ElasticsearchStore struct {
	client    *elasticsearch.Client
	index     string
	dimension int
}

var _ Store = (*ElasticsearchStore)(nil)

// NewElasticsearchStore creates a store over an existing index.
func NewElasticsearchStore(client *elasticsearch.Client, index string, dimension int) *ElasticsearchStore {
	return &ElasticsearchStore{client: client, index: index, dimension: dimension}
}

// Search issues a kNN query. Elasticsearch reports cosine as (1+cos)/2, so the
// score is mapped back with 2*score-1 before thresholding.
func (s *ElasticsearchStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]Match, error) {
	numCandidates := limit * 10
	if numCandidates < 50 {
		numCandidates = 50
	}
	body := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   query,
			"k":              limit,
			"num_candidates": numCandidates,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"dimension": len(query)},
			},
		},
		"size": limit,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode knn query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ElasticsearchStore] 检索返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					ChunkID    string                 `json:"chunk_id"`
					DocumentID string                 `json:"document_id"`
					Content    string                 `json:"content"`
					Vector     json.RawMessage        `json:"vector"`
					Metadata   map[string]interface{} `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode es response: %w", err)
	}

	matches := make([]Match, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		sim := ClampSimilarity(2*hit.Score - 1)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{
			ChunkID:    hit.Source.ChunkID,
			DocumentID: hit.Source.DocumentID,
			Content:    hit.Source.Content,
			Similarity: sim,
			Metadata:   hit.Source.Metadata,
			Embedding:  hit.Source.Vector,
		})
	}
	return matches, nil
}

// Upsert indexes chunks through the bulk API with the chunk id as document id.
func (s *ElasticsearchStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ValidateRecords(records, s.dimension); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		action := map[string]interface{}{"index": map[string]interface{}{"_index": s.index, "_id": r.ChunkID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		doc := esChunk{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Vector:     r.Vector,
			Model:      r.Model,
			Dimension:  len(r.Vector),
			Metadata:   r.Metadata,
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{Body: &buf, Refresh: "true"}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk returned an error: %s", res.String())
	}
	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return errors.New("elasticsearch bulk reported item errors")
	}
	return nil
}

// DeleteByDocument removes the chunks of documentID.
func (s *ElasticsearchStore) DeleteByDocument(ctx context.Context, documentID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": documentID},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}
	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		&buf,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete by query failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch delete by query returned an error: %s", res.String())
	}
	return nil
}
