package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webchat/internal/model/chat"
	"webchat/internal/pkg/logger"
	"webchat/internal/service"
)

// ChatRequest 对话请求
type ChatRequest struct {
	ConversationID string         `json:"conversation_id"` // 对话ID，为空时新建
	Query          string         `json:"query"`           // 用户输入
	Files          []chat.FileRef `json:"files,omitempty"` // 附件
	User           string         `json:"user,omitempty"`  // 用户标识（可选）
}

// Chat 流式对话
// @Summary      流式对话
// @Description  以 text/event-stream 返回 start、chunk、stopped、error、done 事件，每个事件一个 JSON 对象
// @Tags         对话
// @Accept       json
// @Produce      text/event-stream
// @Param        request  body      ChatRequest    true  "对话请求"
// @Success      200      {object}  chat.ChatEvent "事件流"
// @Failure      400      {object}  ErrorResponse  "查询内容为空"
// @Failure      500      {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/chat [post]
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	streaming := false
	sink := func(evt chat.ChatEvent) error {
		if !streaming {
			streaming = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		c.SSEvent("", evt)
		c.Writer.Flush()
		return ctx.Err()
	}

	err := h.chatService.Chat(ctx, &service.ChatRequest{
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Files:          req.Files,
		User:           resolveUser(c, req.User),
	}, sink)
	if err == nil {
		return
	}
	if streaming {
		logger.Ctx(ctx).Debug().Err(err).Msg("Client left before turn finished")
		return
	}

	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40002,
			Message: "query is required",
		})
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("Chat turn failed before streaming")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: "Failed to start chat",
			Detail:  err.Error(),
		})
	}
}
