package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Delete 删除对话
// @Summary      删除对话
// @Description  删除对话及其全部消息，对不存在的对话同样返回成功
// @Tags         对话管理
// @Produce      json
// @Param        id   path      string  true  "对话ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  ErrorResponse
// @Router       /api/v1/conversations/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if err := h.conversationService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeStoreError(c, err, "Failed to delete conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
