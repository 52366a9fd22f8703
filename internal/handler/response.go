// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"admate-rag-go/internal/service"
)

// respondOK 以统一格式返回成功结果
func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// respondError 以统一格式返回错误
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}

// statusFromError 将业务错误映射为 HTTP 状态码
func statusFromError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrIndexingDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrEmbeddingProvider), errors.Is(err, service.ErrVectorStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
