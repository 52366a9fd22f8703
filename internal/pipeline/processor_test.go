package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/tasks"
	"admate-rag-go/pkg/vectorstore"
)

type mapTexts map[string]string

func (m mapTexts) ReadText(ctx context.Context, key string) (string, error) {
	text, ok := m[key]
	if !ok {
		return "", errors.New("object not found")
	}
	return text, nil
}

// wrongDimEmbedder 返回与部署维度不一致的向量
type wrongDimEmbedder struct{ embedding.Client }

func (w wrongDimEmbedder) CreateEmbedding(ctx context.Context, text string) (*embedding.Result, error) {
	return &embedding.Result{Vector: make([]float32, 4), Model: "other", Dimension: 4}, nil
}

func testProcessor(emb embedding.Client, texts TextReader) (*Processor, *vectorstore.MemoryStore, repository.DocumentRepository) {
	cfg := config.Default()
	cfg.Embedding.Dimensions = 8
	cfg.Pipeline.ChunkSize = 10
	cfg.Pipeline.ChunkOverlap = 2
	store := vectorstore.NewMemoryStore(8)
	repo := repository.NewMemoryDocumentRepository()
	return NewProcessor(config.NewHolder(cfg), emb, store, repo, texts, nil), store, repo
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()
	p, store, repo := testProcessor(embedding.NewHashClient("hash-v1", 8), nil)

	text := strings.Repeat("광고심사가이드", 4) // 28 runes
	require.NoError(t, p.Process(ctx, tasks.DocumentIndexTask{DocumentID: "faq", Title: "광고 심사", Type: "file", Text: text}))

	doc, err := repo.FindByID(ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusIndexed, doc.Status)
	assert.Equal(t, 4, doc.ChunkCount)
	assert.Equal(t, 4, store.Len())

	// 重复处理不会累积分块
	require.NoError(t, p.Process(ctx, tasks.DocumentIndexTask{DocumentID: "faq", Title: "광고 심사", Text: "짧은 본문"}))
	assert.Equal(t, 1, store.Len())

	q, err := embedding.NewHashClient("hash-v1", 8).CreateEmbedding(ctx, "짧은 본문")
	require.NoError(t, err)
	matches, err := store.Search(ctx, q.Vector, 0.99, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "faq_chunk_0", matches[0].ChunkID)
	assert.Equal(t, "광고 심사", matches[0].Metadata["title"])
}

func TestProcessor_ReadsObjectStore(t *testing.T) {
	ctx := context.Background()
	p, store, _ := testProcessor(embedding.NewHashClient("hash-v1", 8), mapTexts{"documents/a.txt": "오브젝트 본문"})

	require.NoError(t, p.Process(ctx, tasks.DocumentIndexTask{DocumentID: "a", Title: "A", ObjectKey: "documents/a.txt"}))
	assert.Equal(t, 1, store.Len())

	err := p.Process(ctx, tasks.DocumentIndexTask{DocumentID: "b", Title: "B", ObjectKey: "documents/missing.txt"})
	assert.Error(t, err)
}

func TestProcessor_RejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	p, store, repo := testProcessor(wrongDimEmbedder{embedding.NewHashClient("hash-v1", 8)}, nil)

	err := p.Process(ctx, tasks.DocumentIndexTask{DocumentID: "bad", Title: "Bad", Text: "본문 내용"})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Equal(t, 0, store.Len())

	doc, err := repo.FindByID(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
}

func TestProcessor_EmptyText(t *testing.T) {
	p, _, repo := testProcessor(embedding.NewHashClient("hash-v1", 8), nil)
	require.Error(t, p.Process(context.Background(), tasks.DocumentIndexTask{DocumentID: "e", Title: "E", Text: "   "}))

	doc, err := repo.FindByID(context.Background(), "e")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"abcd", "cdef", "efg"}, splitText("abcdefg", 4, 2))
	assert.Equal(t, []string{"abc", "def", "g"}, splitText("abcdefg", 3, 5))
	assert.Equal(t, []string{"가나다"}, splitText("  가나다  ", 10, 2))
	assert.Nil(t, splitText("   ", 10, 2))
}

func TestInlinePublisher(t *testing.T) {
	p, store, _ := testProcessor(embedding.NewHashClient("hash-v1", 8), nil)
	pub := InlinePublisher{Processor: p}
	require.NoError(t, pub.PublishIndexTask(context.Background(), tasks.DocumentIndexTask{DocumentID: "x", Title: "X", Text: "본문"}))
	assert.Equal(t, 1, store.Len())
}
