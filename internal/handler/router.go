package handler

import (
	"github.com/gin-gonic/gin"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/middleware"
	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/llm"
	"admate-rag-go/pkg/metrics"
)

// Dependencies 是注册路由所需的全部服务。
type Dependencies struct {
	Config              config.Provider
	ChatService         service.ChatService
	SearchService       service.SearchService
	DocumentService     service.DocumentService
	ConversationService service.ConversationService
	LLM                 llm.Client
	Embedder            embedding.Client
	Metrics             *metrics.Metrics
}

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config.Current()

	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	chatHandler := NewChatHandler(deps.Config, deps.ChatService, deps.ConversationService)
	searchHandler := NewSearchHandler(deps.Config, deps.SearchService)
	documentHandler := NewDocumentHandler(deps.DocumentService)
	conversationHandler := NewConversationHandler(deps.ConversationService)
	healthHandler := NewHealthHandler(deps.Config, deps.LLM, deps.Embedder)

	r.GET("/health", healthHandler.Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	apiV1 := r.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		apiV1.Use(middleware.RateLimit(middleware.NewIPRateLimiter(cfg.RateLimit)))
	}
	{
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.GET("/search", searchHandler.Search)

		// Document 路由组
		documents := apiV1.Group("/documents")
		{
			documents.GET("", documentHandler.ListDocuments)
			documents.POST("", documentHandler.SubmitDocument)
			documents.GET("/:id", documentHandler.GetDocument)
			documents.POST("/:id/reindex", documentHandler.Reindex)
		}

		apiV1.GET("/conversations/:sessionId", conversationHandler.GetConversation)
	}

	// Chat 路由 (WebSocket)
	r.GET("/chat/ws", chatHandler.Handle)

	return r
}
