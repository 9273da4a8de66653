package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httputil "webchat/internal/pkg/http"
)

// StopRequest 停止请求
type StopRequest struct {
	ConversationID string `json:"conversation_id"`
	TaskID         string `json:"task_id"`
	User           string `json:"user"`
}

// StopResponseData 停止响应数据
type StopResponseData struct {
	Success bool `json:"success"`
	Local   bool `json:"local"` // 本实例是否有进行中的回合
}

// Stop 停止生成
// @Summary      停止生成
// @Description  置位本地取消标记；带 task_id 时同时通知上游停止。对已结束的回合调用无副作用
// @Tags         对话
// @Accept       json
// @Produce      json
// @Param        request  body      StopRequest  true  "停止请求"
// @Success      200      {object}  map[string]interface{}  "成功响应"
// @Failure      400      {object}  ErrorResponse  "请求参数错误"
// @Router       /api/v1/chat/stop [post]
func (h *Handler) Stop(c *gin.Context) {
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	local := h.chatService.RequestStop(c.Request.Context(), req.ConversationID, req.TaskID, resolveUser(c, req.User))
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("success", StopResponseData{
		Success: true,
		Local:   local,
	}))
}
