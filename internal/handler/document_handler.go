package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/log"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// ListDocuments 处理获取文档列表的请求，可按 status 过滤。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docService.ListDocuments(c.Request.Context(), c.Query("status"))
	if err != nil {
		log.Error("ListDocuments: failed", err)
		respondError(c, statusFromError(err), "获取文档列表失败")
		return
	}
	respondOK(c, http.StatusOK, "success", docs)
}

// GetDocument 处理获取单个文档的请求。
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.docService.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, statusFromError(err), "获取文档失败")
		return
	}
	respondOK(c, http.StatusOK, "success", doc)
}

// Reindex 投递重建索引任务。
func (h *DocumentHandler) Reindex(c *gin.Context) {
	id := c.Param("id")
	if err := h.docService.Reindex(c.Request.Context(), id); err != nil {
		log.Errorf("Reindex: failed, id: %s, err: %v", id, err)
		respondError(c, statusFromError(err), err.Error())
		return
	}
	respondOK(c, http.StatusAccepted, "重建索引任务已提交", gin.H{"id": id})
}

// SubmitDocument 登记一份纯文本文档并投递索引任务。
func (h *DocumentHandler) SubmitDocument(c *gin.Context) {
	var req service.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}
	doc, err := h.docService.Submit(c.Request.Context(), req)
	if err != nil {
		log.Errorf("SubmitDocument: failed, title: %s, err: %v", req.Title, err)
		respondError(c, statusFromError(err), err.Error())
		return
	}
	respondOK(c, http.StatusAccepted, "文档已提交，正在索引", doc)
}
