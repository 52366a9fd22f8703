package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/repository"
	"admate-rag-go/pkg/tasks"
)

type recordingPublisher struct {
	tasks []tasks.DocumentIndexTask
	err   error
}

func (p *recordingPublisher) PublishIndexTask(ctx context.Context, task tasks.DocumentIndexTask) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

type memoryObjects struct {
	objects map[string]string
}

func (m *memoryObjects) PutText(ctx context.Context, key, text string) error {
	m.objects[key] = text
	return nil
}

func (m *memoryObjects) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://minio.local/" + key + "?sig=1", nil
}

func TestDocumentService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("inline text without object store", func(t *testing.T) {
		repo := repository.NewMemoryDocumentRepository()
		pub := &recordingPublisher{}
		svc := NewDocumentService(repo, pub, nil)

		doc, err := svc.Submit(ctx, IndexRequest{Title: "광고 정책", Text: "본문"})
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, model.DocumentTypeFile, doc.Type)

		require.Len(t, pub.tasks, 1)
		assert.Equal(t, "본문", pub.tasks[0].Text)
		assert.Empty(t, pub.tasks[0].ObjectKey)

		stored, err := repo.FindByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, model.DocumentStatusPending, stored.Status)
	})

	t.Run("text goes to object store", func(t *testing.T) {
		objects := &memoryObjects{objects: map[string]string{}}
		pub := &recordingPublisher{}
		svc := NewDocumentService(repository.NewMemoryDocumentRepository(), pub, objects)

		doc, err := svc.Submit(ctx, IndexRequest{ID: "faq-1", Title: "FAQ", Type: model.DocumentTypeURL, URL: "https://a.example", Text: "본문"})
		require.NoError(t, err)
		assert.Equal(t, "documents/faq-1.txt", doc.ObjectKey)
		assert.Equal(t, "본문", objects.objects["documents/faq-1.txt"])
		require.Len(t, pub.tasks, 1)
		assert.Equal(t, "documents/faq-1.txt", pub.tasks[0].ObjectKey)
		assert.Empty(t, pub.tasks[0].Text)
		assert.Equal(t, "url", pub.tasks[0].Type)
	})

	t.Run("validation", func(t *testing.T) {
		svc := NewDocumentService(repository.NewMemoryDocumentRepository(), &recordingPublisher{}, nil)
		_, err := svc.Submit(ctx, IndexRequest{Title: "t", Text: " "})
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = svc.Submit(ctx, IndexRequest{Text: "본문"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("indexing disabled", func(t *testing.T) {
		svc := NewDocumentService(repository.NewMemoryDocumentRepository(), nil, nil)
		_, err := svc.Submit(ctx, IndexRequest{Title: "t", Text: "본문"})
		assert.ErrorIs(t, err, ErrIndexingDisabled)
	})
}

func TestDocumentService_Reindex(t *testing.T) {
	ctx := context.Background()
	repo := seededDocs(
		model.Document{ID: "stored", Title: "저장됨", Type: model.DocumentTypeFile, Status: model.DocumentStatusIndexed, ObjectKey: "documents/stored.txt"},
		model.Document{ID: "inline", Title: "인라인", Type: model.DocumentTypeFile, Status: model.DocumentStatusIndexed},
	)
	pub := &recordingPublisher{}
	svc := NewDocumentService(repo, pub, nil)

	require.NoError(t, svc.Reindex(ctx, "stored"))
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, "documents/stored.txt", pub.tasks[0].ObjectKey)
	doc, err := repo.FindByID(ctx, "stored")
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusPending, doc.Status)

	assert.ErrorIs(t, svc.Reindex(ctx, "inline"), ErrInvalidInput)
	assert.ErrorIs(t, svc.Reindex(ctx, "missing"), ErrDocumentNotFound)

	failing := NewDocumentService(repo, &recordingPublisher{err: errors.New("broker down")}, nil)
	assert.Error(t, failing.Reindex(ctx, "stored"))
}

func TestDocumentService_ListAndGet(t *testing.T) {
	ctx := context.Background()
	repo := seededDocs(
		model.Document{ID: "a", Title: "A", Status: model.DocumentStatusIndexed, ObjectKey: "documents/a.txt"},
		model.Document{ID: "b", Title: "B", Status: model.DocumentStatusFailed},
	)
	svc := NewDocumentService(repo, nil, &memoryObjects{objects: map[string]string{}})

	docs, err := svc.ListDocuments(ctx, "failed")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	_, err = svc.ListDocuments(ctx, "archived")
	assert.ErrorIs(t, err, ErrInvalidInput)

	dto, err := svc.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/documents/a.txt?sig=1", dto.DownloadURL)

	dto, err = svc.GetDocument(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, dto.DownloadURL)

	_, err = svc.GetDocument(ctx, "zzz")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestConversationService(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Chat.HistoryLimit = 4
	svc := NewConversationService(config.NewHolder(cfg), repository.NewMemoryConversationRepository())

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RecordExchange(ctx, "s-1", "광고 승인", &model.ChatResponse{
			Answer: "24시간", Confidence: 0.826, Model: "qwen2.5:7b", IsLLMGenerated: true,
		}))
	}
	history, err := svc.GetConversationHistory(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[3].Role)
	assert.Equal(t, 83, history[3].Confidence)

	_, err = svc.GetConversationHistory(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.NoError(t, svc.RecordExchange(ctx, "", "q", &model.ChatResponse{}))
}
