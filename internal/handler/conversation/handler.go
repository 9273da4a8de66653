package conversation

import (
	"webchat/internal/service"
)

// Handler 对话管理处理器
type Handler struct {
	conversationService *service.ConversationService
}

// NewHandler 创建对话管理处理器
func NewHandler(conversationService *service.ConversationService) *Handler {
	return &Handler{conversationService: conversationService}
}
