package conversation

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// List 获取对话列表
// @Summary      获取对话列表
// @Description  按更新时间倒序返回对话，最多 200 条；传 user 时只返回该用户的对话
// @Tags         对话管理
// @Produce      json
// @Param        user   query     string  false  "用户标识"
// @Param        limit  query     int     false  "条数上限"
// @Success      200    {array}   chat.Conversation
// @Failure      500    {object}  ErrorResponse
// @Router       /api/v1/conversations [get]
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	convs, err := h.conversationService.List(c.Request.Context(), c.Query("user"), limit)
	if err != nil {
		writeStoreError(c, err, "Failed to list conversations")
		return
	}

	c.JSON(http.StatusOK, convs)
}
