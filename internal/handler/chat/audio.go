package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webchat/internal/pkg/logger"
	"webchat/internal/upstream"
)

// AudioToText 语音转文字（透传到上游）
// @Summary      语音转文字
// @Description  multipart/form-data 透传到上游 /audio-to-text，默认文件名 recording.webm、类型 audio/webm
// @Tags         文件
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file    true   "音频文件"
// @Param        user  formData  string  false  "用户标识"
// @Success      200   {object}  map[string]interface{}  "上游响应"
// @Failure      400   {object}  ErrorResponse  "缺少音频文件"
// @Failure      504   {object}  ErrorResponse  "语音识别超时"
// @Router       /api/v1/audio-to-text [post]
func (h *Handler) AudioToText(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "No audio file provided",
		})
		return
	}

	file, err := readFilePart(fh, h.maxFileBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40003,
			Message: "Failed to read audio file",
			Detail:  err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	resp, err := h.fileService.AudioToText(ctx, file, resolveUser(c, c.PostForm("user")))
	if err != nil {
		if errors.Is(err, upstream.ErrTimeout) {
			c.JSON(http.StatusGatewayTimeout, ErrorResponse{
				Code:    50401,
				Message: "语音识别超时，请重试",
			})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("Audio pass-through failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	writePassThrough(c, resp)
}
