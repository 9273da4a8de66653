package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webchat/internal/pkg/logger"
	"webchat/internal/upstream"
)

// Upload 上传文件（透传到上游）
// @Summary      上传文件
// @Description  multipart/form-data 透传到上游 /files/upload，原样返回上游状态码与响应体
// @Tags         文件
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file    true   "上传的文件"
// @Param        user  formData  string  false  "用户标识"
// @Success      200   {object}  map[string]interface{}  "上游响应"
// @Failure      400   {object}  ErrorResponse  "缺少文件"
// @Failure      504   {object}  ErrorResponse  "上传超时"
// @Router       /api/v1/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "No file provided",
		})
		return
	}

	file, err := readFilePart(fh, h.maxFileBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40003,
			Message: "Failed to read file",
			Detail:  err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	resp, err := h.fileService.Upload(ctx, file, resolveUser(c, c.PostForm("user")))
	if err != nil {
		if errors.Is(err, upstream.ErrTimeout) {
			c.JSON(http.StatusGatewayTimeout, ErrorResponse{
				Code:    50401,
				Message: "上传超时，请重试",
			})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("Upload pass-through failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	writePassThrough(c, resp)
}
