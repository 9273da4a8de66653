package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"webchat/internal/pkg/logger"
)

// 探活请求不记录
var skipLogPaths = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// Logger 请求日志中间件，需在 RequestID 与 UserIdentity 之后注册
// 流式响应额外记录 stream 标记，latency 为整轮耗时
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipLogPaths[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		l := logger.Ctx(c.Request.Context())
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = l.Error()
		case status >= 400:
			event = l.Warn()
		default:
			event = l.Info()
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Str("query", c.Request.URL.RawQuery).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Bool("stream", strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}
