package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admate-rag-go/internal/model"
	"admate-rag-go/internal/service"
)

type stubChat struct{ question string }

func (s *stubChat) GenerateChatResponse(ctx context.Context, query string) (*model.ChatResponse, error) {
	s.question = query
	return &model.ChatResponse{
		Answer:         "광고 승인은 보통 24시간 이내입니다.",
		Sources:        []model.SearchResult{{DocumentTitle: "광고 검토", Similarity: 0.9}},
		Confidence:     0.75,
		Model:          "qwen2.5:7b",
		IsLLMGenerated: true,
	}, nil
}

type stubSearch struct{ limit int }

func (s *stubSearch) SearchSimilarChunks(ctx context.Context, query string, limit int, threshold float64) ([]model.SearchResult, error) {
	s.limit = limit
	return []model.SearchResult{{DocumentTitle: "광고 검토", Content: "광고 검토는 24시간", Similarity: 0.91}}, nil
}

type stubDocuments struct {
	service.DocumentService
	req service.IndexRequest
}

func (s *stubDocuments) Submit(ctx context.Context, req service.IndexRequest) (*model.Document, error) {
	s.req = req
	return &model.Document{ID: "doc-1", Title: req.Title, Status: model.DocumentStatusIndexed}, nil
}

func setupTestServices() (*stubChat, *stubSearch, *stubDocuments, func()) {
	chat, search, docs := &stubChat{}, &stubSearch{}, &stubDocuments{}
	chatService, searchService, documentService = chat, search, docs
	return chat, search, docs, func() {
		chatService, searchService, documentService = nil, nil, nil
		rootCmd.SetArgs(nil)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestAskCmd(t *testing.T) {
	chat, _, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "ask", "광고", "승인은?")
	require.NoError(t, err)
	assert.Equal(t, "광고 승인은?", chat.question)
	assert.Contains(t, out, "24시간")
	assert.Contains(t, out, "Confidence: 75%")
	assert.Contains(t, out, "[1] 광고 검토 (90%)")
}

func TestSearchCmd(t *testing.T) {
	_, search, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "search", "광고", "-n", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, search.limit)
	assert.Contains(t, out, "[1] 광고 검토 (0.91)")
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	_, _, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestIndexCmd(t *testing.T) {
	_, _, docs, cleanup := setupTestServices()
	defer cleanup()

	path := filepath.Join(t.TempDir(), "review-policy.md")
	require.NoError(t, os.WriteFile(path, []byte("광고 검토는 24시간 이내"), 0o644))

	out, err := execute(t, "index", path)
	require.NoError(t, err)
	assert.Equal(t, "review-policy", docs.req.Title)
	assert.Equal(t, model.DocumentTypeFile, docs.req.Type)
	assert.Contains(t, out, "Submitted review-policy (doc-1)")
}
