package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/llm"
	"admate-rag-go/pkg/metrics"
	"admate-rag-go/pkg/tasks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubChatService struct {
	resp    *model.ChatResponse
	err     error
	queries []string
	mu      sync.Mutex
}

func (s *stubChatService) GenerateChatResponse(ctx context.Context, query string) (*model.ChatResponse, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type stubSearchService struct {
	limit     int
	threshold float64
	results   []model.SearchResult
	err       error
}

func (s *stubSearchService) SearchSimilarChunks(ctx context.Context, query string, limit int, threshold float64) ([]model.SearchResult, error) {
	s.limit, s.threshold = limit, threshold
	return s.results, s.err
}

type stubLLM struct{ pingErr error }

func (l *stubLLM) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	return "", nil
}
func (l *stubLLM) Model() string                  { return "qwen2.5:7b" }
func (l *stubLLM) Ping(ctx context.Context) error { return l.pingErr }

type recordingPublisher struct {
	tasks []tasks.DocumentIndexTask
}

func (p *recordingPublisher) PublishIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error {
	p.tasks = append(p.tasks, task)
	return nil
}

type testEnv struct {
	router    *gin.Engine
	chat      *stubChatService
	search    *stubSearchService
	docs      repository.DocumentRepository
	publisher *recordingPublisher
	llm       *stubLLM
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	holder := config.NewHolder(cfg)

	env := &testEnv{
		chat: &stubChatService{resp: &model.ChatResponse{
			Answer:         "**핵심 답변** 광고 승인은 보통 24시간 이내에 완료됩니다.",
			Sources:        []model.SearchResult{{ChunkID: "doc-1_0", DocumentID: "doc-1", Content: "광고 검토는 24시간 이내", Similarity: 0.876, DocumentTitle: "광고 검토"}},
			Confidence:     0.82,
			ProcessingTime: 1500 * time.Millisecond,
			Model:          "qwen2.5:7b",
			IsLLMGenerated: true,
		}},
		search:    &stubSearchService{},
		docs:      repository.NewMemoryDocumentRepository(),
		publisher: &recordingPublisher{},
		llm:       &stubLLM{},
		metrics:   metrics.New(),
	}
	env.router = NewRouter(Dependencies{
		Config:              holder,
		ChatService:         env.chat,
		SearchService:       env.search,
		DocumentService:     service.NewDocumentService(env.docs, env.publisher, nil),
		ConversationService: service.NewConversationService(holder, repository.NewMemoryConversationRepository()),
		LLM:                 env.llm,
		Embedder:            embedding.NewHashClient("hash-v1", 8),
		Metrics:             env.metrics,
	})
	return env
}

func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestChatHandler_Chat(t *testing.T) {
	t.Run("returns response dto", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/v1/chat", `{"message":"광고 승인은 얼마나 걸리나요?"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var dto model.ChatResponseDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))
		assert.Equal(t, 82, dto.Confidence)
		assert.Equal(t, int64(1500), dto.ProcessingTimeMs)
		assert.True(t, dto.IsLLMGenerated)
		require.Len(t, dto.Sources, 1)
		assert.Equal(t, 88, dto.Sources[0].Similarity)
		assert.Equal(t, "광고 검토", dto.Sources[0].Title)
		assert.NotEmpty(t, dto.SessionID)
		assert.Equal(t, dto.SessionID, w.Header().Get(SessionHeader))
	})

	t.Run("empty message", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/v1/chat", `{"message":"   "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.chat.queries)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/v1/chat", `{"message":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("session header is reused and history recorded", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/v1/chat", `{"message":"질문"}`, SessionHeader, "s-1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "s-1", w.Header().Get(SessionHeader))

		w = env.do(http.MethodGet, "/api/v1/conversations/s-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		var history []model.ChatMessage
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &history))
		require.Len(t, history, 2)
		assert.Equal(t, "user", history[0].Role)
		assert.Equal(t, "질문", history[0].Content)
		assert.Equal(t, "assistant", history[1].Role)
		assert.Equal(t, 82, history[1].Confidence)
	})

	t.Run("service error", func(t *testing.T) {
		env := newTestEnv(t)
		env.chat.err = errors.New("boom")
		w := env.do(http.MethodPost, "/api/v1/chat", `{"message":"질문"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestChatHandler_WebSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?sessionId=ws-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"광고 승인?"}`)))

	var dto model.ChatResponseDTO
	require.NoError(t, conn.ReadJSON(&dto))
	assert.Equal(t, "ws-1", dto.SessionID)
	assert.Equal(t, 82, dto.Confidence)

	var done map[string]interface{}
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, "completion", done["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plain question")))
	require.NoError(t, conn.ReadJSON(&dto))
	require.NoError(t, conn.ReadJSON(&done))

	env.chat.mu.Lock()
	defer env.chat.mu.Unlock()
	assert.Equal(t, []string{"광고 승인?", "plain question"}, env.chat.queries)
}

func TestParseWSMessage(t *testing.T) {
	assert.Equal(t, "hi", parseWSMessage([]byte(" hi ")))
	assert.Equal(t, "hello", parseWSMessage([]byte(`{"message":" hello "}`)))
	assert.Equal(t, "{broken", parseWSMessage([]byte("{broken")))
}

func TestSearchHandler_Search(t *testing.T) {
	t.Run("uses configured defaults", func(t *testing.T) {
		env := newTestEnv(t)
		env.search.results = []model.SearchResult{{ChunkID: "doc-1_0", Similarity: 0.9}}
		w := env.do(http.MethodGet, "/api/v1/search?query=광고", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, env.search.limit)
		assert.InDelta(t, 0.2, env.search.threshold, 1e-9)

		var results []model.SearchResult
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &results))
		assert.Len(t, results, 1)
	})

	t.Run("explicit parameters", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodGet, "/api/v1/search?query=q&limit=2&threshold=0.5", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, env.search.limit)
		assert.InDelta(t, 0.5, env.search.threshold, 1e-9)
	})

	t.Run("invalid limit", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodGet, "/api/v1/search?query=q&limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("error mapping", func(t *testing.T) {
		env := newTestEnv(t)
		env.search.err = service.ErrInvalidInput
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/search", "").Code)

		env.search.err = service.ErrEmbeddingProvider
		assert.Equal(t, http.StatusBadGateway, env.do(http.MethodGet, "/api/v1/search?query=q", "").Code)
	})
}

func TestDocumentHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/documents", `{"id":"doc-1","title":"광고 검토","text":"광고 검토는 24시간 이내에 완료됩니다."}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, env.publisher.tasks, 1)
	assert.Equal(t, "doc-1", env.publisher.tasks[0].DocumentID)

	w = env.do(http.MethodGet, "/api/v1/documents?status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	var docs []model.Document
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "광고 검토", docs[0].Title)

	w = env.do(http.MethodGet, "/api/v1/documents/doc-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/documents/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/documents/missing/reindex", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/documents", `{"title":"빈 문서","text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationHandler_BlankSession(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/conversations/%20", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		emb := body["embedding"].(map[string]interface{})
		assert.Equal(t, "hash-v1", emb["model"])
		assert.Equal(t, float64(8), emb["dimensions"])
	})

	t.Run("degraded when llm is down", func(t *testing.T) {
		env := newTestEnv(t)
		env.llm.pingErr = errors.New("connection refused")
		w := env.do(http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"degraded"`)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/health", "")
	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `admate_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
