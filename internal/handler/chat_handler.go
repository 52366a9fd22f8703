package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"admate-rag-go/internal/config"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/log"
)

// SessionHeader 携带会话 ID
const SessionHeader = "X-Session-Id"

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatRequest 是 POST /chat 的请求体。
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatHandler 负责处理聊天请求（HTTP 与 WebSocket）。
type ChatHandler struct {
	cfg                 config.Provider
	chatService         service.ChatService
	conversationService service.ConversationService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(cfg config.Provider, chatService service.ChatService, conversationService service.ConversationService) *ChatHandler {
	return &ChatHandler{
		cfg:                 cfg,
		chatService:         chatService,
		conversationService: conversationService,
	}
}

// Chat 处理一次问答请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "잘못된 요청 형식입니다.")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, "메시지를 입력해주세요.")
		return
	}

	sessionID := resolveSessionID(req.SessionID, c.GetHeader(SessionHeader))
	dto, err := h.answer(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		log.Errorf("[ChatHandler] 生成回答失败: %v", err)
		respondError(c, statusFromError(err), "요청을 처리할 수 없습니다.")
		return
	}

	c.Header(SessionHeader, sessionID)
	c.JSON(http.StatusOK, dto)
}

func (h *ChatHandler) answer(ctx context.Context, sessionID, message string) (*model.ChatResponseDTO, error) {
	resp, err := h.chatService.GenerateChatResponse(ctx, message)
	if err != nil {
		return nil, err
	}
	if h.conversationService != nil {
		// 使用后台上下文，即使原始请求被取消也保存已生成的回答
		saveCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := h.conversationService.RecordExchange(saveCtx, sessionID, strings.TrimSpace(message), resp); err != nil {
			// 只记录错误，不影响回答
			log.Errorf("[ChatHandler] 保存对话历史失败: %v", err)
		}
	}
	dto := resp.ToDTO(h.cfg.Current().RAG.SourcePreviewRunes)
	dto.SessionID = sessionID
	return &dto, nil
}

// Handle 处理一个传入的 WebSocket 连接。每个文本帧是一个问题，
// 依次回复一个回答帧和一个完成通知帧。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	sessionID := resolveSessionID(c.Query("sessionId"), "")
	log.Infof("WebSocket 连接已建立，会话: %s", sessionID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		question := parseWSMessage(message)
		if question == "" {
			writeJSON(conn, map[string]string{"error": "메시지를 입력해주세요."})
			sendCompletion(conn)
			continue
		}

		dto, err := h.answer(c.Request.Context(), sessionID, question)
		if err != nil {
			log.Errorf("处理 WebSocket 问题失败: %v", err)
			writeJSON(conn, map[string]string{"error": "요청을 처리할 수 없습니다."})
			sendCompletion(conn)
			if errors.Is(err, context.Canceled) {
				break
			}
			continue
		}
		if err := writeJSON(conn, dto); err != nil {
			log.Warnf("写入 WebSocket 回答失败: %v", err)
			break
		}
		sendCompletion(conn)
	}
}

// parseWSMessage 支持纯文本或 {"message": "..."} 两种格式
func parseWSMessage(message []byte) string {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		var req ChatRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err == nil {
			return strings.TrimSpace(req.Message)
		}
	}
	return trimmed
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(conn *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	_ = writeJSON(conn, notif)
}

func resolveSessionID(candidates ...string) string {
	for _, id := range candidates {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
