package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httputil "webchat/internal/pkg/http"
)

// TitleRequest 标题生成请求
type TitleRequest struct {
	Query string `json:"query"`
}

// TitleResponseData 标题生成响应数据
type TitleResponseData struct {
	Title  string `json:"title"`
	Source string `json:"source"` // model, keywords, default
}

// Title 生成对话标题
// @Summary      生成对话标题
// @Description  根据用户输入生成 10 字以内的中文标题；模型不可用时退化为关键词或默认标题
// @Tags         对话
// @Accept       json
// @Produce      json
// @Param        request  body      TitleRequest  true  "标题生成请求"
// @Success      200      {object}  map[string]interface{}  "成功响应"
// @Router       /api/v1/title [post]
func (h *Handler) Title(c *gin.Context) {
	var req TitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	title, source := h.titleService.Generate(c.Request.Context(), req.Query)
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("success", TitleResponseData{
		Title:  title,
		Source: string(source),
	}))
}
