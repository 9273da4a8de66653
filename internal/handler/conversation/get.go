package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Get 获取对话详情
// @Summary      获取对话详情
// @Tags         对话管理
// @Produce      json
// @Param        id   path      string  true  "对话ID"
// @Success      200  {object}  chat.Conversation
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/conversations/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	conv, err := h.conversationService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreError(c, err, "Failed to get conversation")
		return
	}

	c.JSON(http.StatusOK, conv)
}
