package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httputil "webchat/internal/pkg/http"
)

// RenameRequest 重命名请求
type RenameRequest struct {
	Title string `json:"title"`
}

// Rename 重命名对话
// @Summary      重命名对话
// @Description  标题去除首尾空白后最多 80 字，为空时恢复默认标题
// @Tags         对话管理
// @Accept       json
// @Produce      json
// @Param        id       path      string         true  "对话ID"
// @Param        request  body      RenameRequest  true  "重命名请求"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /api/v1/conversations/{id}/title [put]
func (h *Handler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    httputil.CodeInvalidParams,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	title, err := h.conversationService.Rename(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		writeStoreError(c, err, "Failed to rename conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"title":   title,
	})
}
