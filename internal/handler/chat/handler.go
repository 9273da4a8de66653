package chat

import (
	"webchat/internal/service"
)

// Handler 对话流与文件透传处理器
type Handler struct {
	chatService  *service.ChatService
	fileService  *service.FileService
	titleService *service.TitleService
	maxFileBytes int64
}

// NewHandler 创建处理器
func NewHandler(chatService *service.ChatService, fileService *service.FileService, titleService *service.TitleService) *Handler {
	return &Handler{
		chatService:  chatService,
		fileService:  fileService,
		titleService: titleService,
		maxFileBytes: defaultMaxFileBytes,
	}
}
