package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"webchat/internal/pkg/ctxutil"
)

// UserIDHeader 调用方身份头
const UserIDHeader = "X-User-ID"

// UserIdentity 解析调用方身份并注入 context
// 服务不做认证，身份仅用于转发给上游和过滤对话列表
func UserIdentity(defaultUser string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if user == "" {
			user = defaultUser
		}
		if user != "" {
			c.Request = c.Request.WithContext(ctxutil.WithUserID(c.Request.Context(), user))
		}
		c.Next()
	}
}

// UserID 读取 UserIdentity 注入的身份，未注入时返回空串
func UserID(c *gin.Context) string {
	user, _ := ctxutil.GetUserID(c.Request.Context())
	return user
}
