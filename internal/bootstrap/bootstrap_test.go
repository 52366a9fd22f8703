package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/service"
)

const seedText = "광고 검토는 보통 24시간 이내에 완료됩니다."

func newMemoryApp(t *testing.T, llmURL string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Redis.Addr = ""
	cfg.Embedding.Dimensions = 16
	cfg.LLM.BaseURL = llmURL

	app, err := New(context.Background(), config.NewHolder(cfg))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestNew_MemoryBackendEndToEnd(t *testing.T) {
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"**핵심 답변**\n광고 검토는 보통 24시간 이내에 완료됩니다.","done":true}`))
	}))
	defer llmSrv.Close()

	app := newMemoryApp(t, llmSrv.URL)
	ctx := context.Background()

	assert.Nil(t, app.DB)
	assert.Nil(t, app.Redis)
	assert.Nil(t, app.NewConsumer())
	assert.Equal(t, 16, app.Embedder.Dimensions())

	doc, err := app.DocumentService.Submit(ctx, service.IndexRequest{ID: "doc-1", Title: "광고 검토", Text: seedText})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)

	stored, err := app.Documents.FindByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusIndexed, stored.Status)
	assert.Equal(t, 1, stored.ChunkCount)

	results, err := app.SearchService.SearchSimilarChunks(ctx, seedText, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "광고 검토", results[0].DocumentTitle)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)

	resp, err := app.ChatService.GenerateChatResponse(ctx, seedText)
	require.NoError(t, err)
	assert.True(t, resp.IsLLMGenerated)
	assert.Equal(t, "qwen2.5:7b", resp.Model)
	assert.Len(t, resp.Sources, 1)
}

func TestNew_MissingDSN(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Redis.Addr = ""
	cfg.VectorStore.Backend = "pgvector"

	_, err := New(context.Background(), config.NewHolder(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.postgres.dsn")
}

func TestApp_RouterDependencies(t *testing.T) {
	app := newMemoryApp(t, "http://127.0.0.1:1")
	deps := app.RouterDependencies()
	assert.Same(t, app.Metrics, deps.Metrics)
	assert.NotNil(t, deps.ChatService)
	assert.NotNil(t, deps.DocumentService)
}
