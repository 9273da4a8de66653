package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Messages 获取对话消息
// @Summary      获取对话消息
// @Description  按创建时间升序返回消息，附件损坏时返回空列表
// @Tags         对话管理
// @Produce      json
// @Param        id   path      string  true  "对话ID"
// @Success      200  {array}   chat.Message
// @Failure      500  {object}  ErrorResponse
// @Router       /api/v1/conversations/{id}/messages [get]
func (h *Handler) Messages(c *gin.Context) {
	messages, err := h.conversationService.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreError(c, err, "Failed to list messages")
		return
	}

	c.JSON(http.StatusOK, messages)
}
