package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/llm"
	"admate-rag-go/pkg/vectorstore"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	delay time.Duration
}

func (e *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) (*embedding.Result, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return &embedding.Result{Vector: e.vec, Model: "fake", Dimension: len(e.vec)}, nil
}

func (e *fakeEmbedder) Model() string   { return "fake" }
func (e *fakeEmbedder) Dimensions() int { return 3 }

type fakeStore struct {
	mu      sync.Mutex
	matches []vectorstore.Match
	err     error
	calls   int
}

func (s *fakeStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]vectorstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]vectorstore.Match, len(s.matches))
	copy(out, s.matches)
	return out, nil
}

func (s *fakeStore) Upsert(ctx context.Context, records []vectorstore.Record) error { return nil }

func (s *fakeStore) DeleteByDocument(ctx context.Context, documentID string) error { return nil }

type fakeLLM struct {
	text   string
	err    error
	block  bool
	prompt string
}

func (l *fakeLLM) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	l.prompt = prompt
	if l.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return l.text, l.err
}

func (l *fakeLLM) Model() string                  { return "qwen2.5:7b" }
func (l *fakeLLM) Ping(ctx context.Context) error { return l.err }

type fakeRenderer struct{}

func (fakeRenderer) HTML(md string) string { return "<p>" + md + "</p>" }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Embedding.Dimensions = 3
	cfg.RAG.Threshold = 0.3
	cfg.RAG.Limit = 5
	cfg.Chat.RenderHTML = true
	return cfg
}

func vecJSON(v ...float32) json.RawMessage {
	return vectorstore.EncodeEmbedding(v)
}

func match(docID string, idx int, content string, sim float64) vectorstore.Match {
	return vectorstore.Match{
		ChunkID:    model.BuildChunkID(docID, idx),
		DocumentID: docID,
		Content:    content,
		Similarity: sim,
		Embedding:  vecJSON(0.1, 0.2, 0.3),
	}
}

func seededDocs(docs ...model.Document) repository.DocumentRepository {
	repo := repository.NewMemoryDocumentRepository()
	for i := range docs {
		_ = repo.Upsert(context.Background(), &docs[i])
	}
	return repo
}
