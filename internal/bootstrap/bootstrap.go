// Package bootstrap 根据配置一次性构建完整的服务依赖图，供 HTTP 服务与命令行工具共用。
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/handler"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/pipeline"
	"admate-rag-go/internal/repository"
	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/database"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/es"
	"admate-rag-go/pkg/kafka"
	"admate-rag-go/pkg/llm"
	"admate-rag-go/pkg/log"
	"admate-rag-go/pkg/metrics"
	"admate-rag-go/pkg/render"
	"admate-rag-go/pkg/storage"
	"admate-rag-go/pkg/vectorstore"
)

// App 持有所有已初始化的组件。
type App struct {
	Config  *config.Holder
	Metrics *metrics.Metrics

	DB    *gorm.DB
	Redis *redis.Client

	Embedder embedding.Client
	LLM      llm.Client
	Store    vectorstore.Store
	Objects  *storage.ObjectStore

	Documents     repository.DocumentRepository
	Conversations repository.ConversationRepository

	Processor *pipeline.Processor
	Producer  *kafka.Producer
	Consumer  *kafka.Consumer

	SearchService       service.SearchService
	ChatService         service.ChatService
	DocumentService     service.DocumentService
	ConversationService service.ConversationService

	closers []func() error
}

// New 按配置依次初始化存储、模型客户端与各个服务。
// Redis 与 MinIO 不可用时降级为内存实现或直接内联索引，向量存储初始化失败则返回错误。
func New(ctx context.Context, holder *config.Holder) (*App, error) {
	cfg := holder.Current()
	app := &App{Config: holder, Metrics: metrics.New()}

	if err := app.initDatabase(cfg); err != nil {
		app.Close()
		return nil, err
	}
	app.initRedis(ctx, cfg)

	if err := app.initModels(cfg); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.initVectorStore(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	app.initObjectStore(ctx, cfg)

	app.Processor = pipeline.NewProcessor(holder, app.Embedder, app.Store, app.Documents, app.textReader(), app.Metrics)

	var publisher service.IndexTaskPublisher = pipeline.InlinePublisher{Processor: app.Processor}
	if cfg.Kafka.Enabled {
		app.Producer = kafka.NewProducer(cfg.Kafka)
		app.closers = append(app.closers, app.Producer.Close)
		publisher = app.Producer
		log.Infof("[Bootstrap] Kafka 已启用, topic: %s", cfg.Kafka.Topic)
	} else {
		log.Info("[Bootstrap] Kafka 未启用，索引任务将同步执行")
	}

	var objects service.TextObjectStore
	if app.Objects != nil {
		objects = app.Objects
	}

	app.SearchService = service.NewSearchService(holder, app.Embedder, app.Store, app.Documents, app.Metrics)
	app.ChatService = service.NewChatService(holder, app.SearchService, app.LLM, render.NewRenderer(), app.Metrics)
	app.DocumentService = service.NewDocumentService(app.Documents, publisher, objects)
	app.ConversationService = service.NewConversationService(holder, app.Conversations)

	log.Infof("[Bootstrap] 初始化完成, 向量存储: %s, embedding: %s (%d 维), llm: %s",
		cfg.VectorStore.Backend, app.Embedder.Model(), app.Embedder.Dimensions(), app.LLM.Model())
	return app, nil
}

// initDatabase 打开向量存储后端需要的关系库。elasticsearch 与 memory 后端在配置了 MySQL DSN 时
// 仍用 MySQL 保存文档元数据。
func (a *App) initDatabase(cfg *config.Config) error {
	var err error
	switch cfg.VectorStore.Backend {
	case "pgvector":
		if cfg.Database.Postgres.DSN == "" {
			return errors.New("pgvector 后端需要配置 database.postgres.dsn")
		}
		a.DB, err = database.OpenPostgres(cfg.Database.Postgres.DSN)
	case "mysql":
		if cfg.Database.MySQL.DSN == "" {
			return errors.New("mysql 后端需要配置 database.mysql.dsn")
		}
		a.DB, err = database.OpenMySQL(cfg.Database.MySQL.DSN)
	default:
		if cfg.Database.MySQL.DSN != "" {
			a.DB, err = database.OpenMySQL(cfg.Database.MySQL.DSN)
		}
	}
	if err != nil {
		return err
	}

	if a.DB == nil {
		log.Warnf("[Bootstrap] 未配置关系数据库，文档元数据保存在内存中")
		a.Documents = repository.NewMemoryDocumentRepository()
		return nil
	}
	sqlDB, err := a.DB.DB()
	if err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	// pgvector 的 document_chunks 表带 vector 列，由外部建表
	tables := []interface{}{&model.Document{}}
	if cfg.VectorStore.Backend == "mysql" {
		tables = append(tables, &model.DocumentChunk{})
	}
	if err := a.DB.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("自动迁移数据表失败: %w", err)
	}
	a.Documents = repository.NewDocumentRepository(a.DB)
	return nil
}

func (a *App) initRedis(ctx context.Context, cfg *config.Config) {
	if cfg.Database.Redis.Addr == "" {
		a.Conversations = repository.NewMemoryConversationRepository()
		return
	}
	rdb, err := database.OpenRedis(ctx, cfg.Database.Redis)
	if err != nil {
		log.Warnf("[Bootstrap] Redis 不可用，对话历史与重试计数降级为内存实现: %v", err)
		a.Conversations = repository.NewMemoryConversationRepository()
		return
	}
	a.Redis = rdb
	a.closers = append(a.closers, rdb.Close)
	a.Conversations = repository.NewConversationRepository(rdb)
}

func (a *App) initModels(cfg *config.Config) error {
	embedder, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("初始化 embedding 客户端失败: %w", err)
	}
	if cfg.Embedding.Cache.Enabled && a.Redis != nil {
		embedder = embedding.NewCachedClient(embedder, a.Redis, cfg.Embedding.Cache.TTL, cfg.Embedding.Timeout)
	}
	a.Embedder = embedder

	a.LLM, err = llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("初始化 LLM 客户端失败: %w", err)
	}
	return nil
}

func (a *App) initVectorStore(ctx context.Context, cfg *config.Config) error {
	dims := cfg.Embedding.Dimensions
	switch cfg.VectorStore.Backend {
	case "mysql":
		a.Store = vectorstore.NewMySQLStore(a.DB, dims, cfg.VectorStore.ScanBatchSize)
	case "pgvector":
		store, err := vectorstore.NewPgVectorStore(a.DB, dims, cfg.VectorStore.MatchFunction)
		if err != nil {
			return err
		}
		a.Store = store
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return err
		}
		if err := es.EnsureIndex(ctx, client, cfg.Elasticsearch.IndexName, dims); err != nil {
			return err
		}
		a.Store = vectorstore.NewElasticsearchStore(client, cfg.Elasticsearch.IndexName, dims)
	case "memory":
		a.Store = vectorstore.NewMemoryStore(dims)
	default:
		return fmt.Errorf("未知的向量存储后端: %q", cfg.VectorStore.Backend)
	}
	return nil
}

func (a *App) initObjectStore(ctx context.Context, cfg *config.Config) {
	if !cfg.MinIO.Enabled {
		return
	}
	objects, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		log.Warnf("[Bootstrap] MinIO 不可用，文档原文将随任务内联传递: %v", err)
		return
	}
	a.Objects = objects
}

func (a *App) textReader() pipeline.TextReader {
	if a.Objects == nil {
		return nil
	}
	return a.Objects
}

// NewConsumer 创建 Kafka 索引消费者，Kafka 未启用时返回 nil。
func (a *App) NewConsumer() *kafka.Consumer {
	cfg := a.Config.Current()
	if !cfg.Kafka.Enabled {
		return nil
	}
	var attempts kafka.AttemptCounter
	if a.Redis != nil {
		attempts = kafka.NewRedisAttemptCounter(a.Redis)
	}
	a.Consumer = kafka.NewConsumer(cfg.Kafka, a.Processor, attempts)
	return a.Consumer
}

// RouterDependencies 返回注册 HTTP 路由所需的服务。
func (a *App) RouterDependencies() handler.Dependencies {
	return handler.Dependencies{
		Config:              a.Config,
		ChatService:         a.ChatService,
		SearchService:       a.SearchService,
		DocumentService:     a.DocumentService,
		ConversationService: a.ConversationService,
		LLM:                 a.LLM,
		Embedder:            a.Embedder,
		Metrics:             a.Metrics,
	}
}

// Close 按初始化的逆序释放资源。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("[Bootstrap] 释放资源失败: %v", err)
		}
	}
	a.closers = nil
}
