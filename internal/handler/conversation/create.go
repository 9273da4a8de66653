package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webchat/internal/server/middleware"
)

// CreateRequest 创建对话请求
type CreateRequest struct {
	Title string `json:"title"`
	User  string `json:"user"`
}

// Create 创建对话
// @Summary      创建对话
// @Description  显式创建空对话，标题为空时使用默认标题
// @Tags         对话管理
// @Accept       json
// @Produce      json
// @Param        request  body      CreateRequest  false  "创建请求"
// @Success      201      {object}  chat.Conversation
// @Failure      500      {object}  ErrorResponse
// @Router       /api/v1/conversations [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	// 请求体可为空
	_ = c.ShouldBindJSON(&req)

	user := req.User
	if user == "" {
		user = middleware.UserID(c)
	}

	conv, err := h.conversationService.Create(c.Request.Context(), req.Title, user)
	if err != nil {
		writeStoreError(c, err, "Failed to create conversation")
		return
	}

	c.JSON(http.StatusCreated, conv)
}
