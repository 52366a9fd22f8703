package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"admate-rag-go/internal/service"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversation 处理获取会话历史的请求。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	history, err := h.service.GetConversationHistory(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, statusFromError(err), "Failed to retrieve conversation history")
		return
	}
	respondOK(c, http.StatusOK, "success", history)
}
