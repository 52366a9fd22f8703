package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"admate-rag-go/internal/config"
	"admate-rag-go/pkg/embedding"
	"admate-rag-go/pkg/llm"
)

// HealthHandler 报告各个依赖的状态。
type HealthHandler struct {
	cfg       config.Provider
	llmClient llm.Client
	embedder  embedding.Client
}

// NewHealthHandler 创建 HealthHandler。
func NewHealthHandler(cfg config.Provider, llmClient llm.Client, embedder embedding.Client) *HealthHandler {
	return &HealthHandler{cfg: cfg, llmClient: llmClient, embedder: embedder}
}

// Health LLM 不可用时服务仍能给出抽取式回答，因此只报告 degraded。
func (h *HealthHandler) Health(c *gin.Context) {
	cfg := h.cfg.Current()
	status := "ok"

	llmStatus := gin.H{"provider": cfg.LLM.Provider, "model": cfg.LLM.Model, "available": true}
	if h.llmClient == nil {
		llmStatus["available"] = false
		status = "degraded"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.llmClient.Ping(ctx); err != nil {
			llmStatus["available"] = false
			llmStatus["error"] = err.Error()
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"llm":    llmStatus,
		"embedding": gin.H{
			"provider":   cfg.Embedding.Provider,
			"model":      h.embedder.Model(),
			"dimensions": h.embedder.Dimensions(),
		},
		"vectorStore": cfg.VectorStore.Backend,
		"timestamp":   time.Now().UnixMilli(),
	})
}
