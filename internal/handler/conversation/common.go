package conversation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	httputil "webchat/internal/pkg/http"
	"webchat/internal/pkg/logger"
	"webchat/internal/repository"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// writeStoreError 将存储错误映射为 HTTP 响应
func writeStoreError(c *gin.Context, err error, message string) {
	if errors.Is(err, repository.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    httputil.CodeConversationNotFound,
			Message: "Conversation not found",
		})
		return
	}
	logger.Ctx(c.Request.Context()).Error().Err(err).Msg(message)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    httputil.CodeInternalError,
		Message: message,
		Detail:  err.Error(),
	})
}
