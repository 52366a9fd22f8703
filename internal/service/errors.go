package service

import "errors"

// 检索与回答流程的错误分类。只有 ErrInvalidInput 会以拒绝的形式返回给调用方，
// 其余错误在 ChatService 中被吸收为降级回答。
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmbeddingProvider = errors.New("embedding provider error")
	ErrVectorStore       = errors.New("vector store error")
	ErrLLMProvider       = errors.New("llm provider error")
)

// 文档管理相关错误
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrIndexingDisabled = errors.New("indexing is not available")
)
