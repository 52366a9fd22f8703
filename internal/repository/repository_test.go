package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admate-rag-go/internal/model"
)

func TestMemoryDocumentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDocumentRepository()

	require.NoError(t, repo.Upsert(ctx, &model.Document{ID: "d1", Title: "광고 정책", Type: model.DocumentTypeFile}))
	require.NoError(t, repo.Upsert(ctx, &model.Document{ID: "d2", Title: "결제", Type: model.DocumentTypeURL, URL: "https://example.com"}))

	doc, err := repo.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusPending, doc.Status)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := repo.FindByIDs(ctx, []string{"d1", "d2", "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, "https://example.com", found["d2"].URL)

	require.NoError(t, repo.UpdateStatus(ctx, "d1", model.DocumentStatusCompleted))
	require.NoError(t, repo.UpdateChunkCount(ctx, "d1", 4))

	completed, err := repo.List(ctx, model.DocumentStatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, 4, completed[0].ChunkCount)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// 重新写入保留分块数
	require.NoError(t, repo.Upsert(ctx, &model.Document{ID: "d1", Title: "광고 정책 v2", Type: model.DocumentTypeFile}))
	doc, err = repo.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "광고 정책 v2", doc.Title)
	assert.Equal(t, 4, doc.ChunkCount)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", model.DocumentStatusFailed), ErrNotFound)
}

func TestMemoryConversationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryConversationRepository()

	history, err := repo.GetConversationHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendMessages(ctx, "s1", 4,
			model.ChatMessage{Role: "user", Content: fmt.Sprintf("q%d", i), Timestamp: time.Now()},
		))
	}
	history, err = repo.GetConversationHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "q1", history[0].Content)
	assert.Equal(t, "q4", history[3].Content)
}
