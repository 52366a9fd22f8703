package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/log"
)

// SearchHandler 结构体定义了检索调试相关的处理器。
type SearchHandler struct {
	cfg           config.Provider
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(cfg config.Provider, searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		cfg:           cfg,
		searchService: searchService,
	}
}

// Search 直接返回检索结果，limit 与 threshold 缺省时使用配置值。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到检索请求, query: %s", query)

	cfg := h.cfg.Current()
	limit := cfg.RAG.Limit
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			respondError(c, http.StatusBadRequest, "limit 参数无效")
			return
		}
		limit = v
	}
	threshold := cfg.RAG.Threshold
	if s := c.Query("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "threshold 参数无效")
			return
		}
		threshold = v
	}

	results, err := h.searchService.SearchSimilarChunks(c.Request.Context(), query, limit, threshold)
	if err != nil {
		log.Errorf("[SearchHandler] 检索失败, error: %v", err)
		respondError(c, statusFromError(err), err.Error())
		return
	}

	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	respondOK(c, http.StatusOK, "success", results)
}
