package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	. "github.com/smartystreets/goconvey/convey"

	"webchat/internal/pkg/ctxutil"
)

func TestUserIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("UserIdentity 解析调用方身份", t, func() {
		var got string
		r := gin.New()
		r.Use(UserIdentity("default_user"))
		r.GET("/", func(c *gin.Context) {
			got = UserID(c)
			c.Status(http.StatusOK)
		})

		Convey("优先使用请求头", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(UserIDHeader, " alice ")
			r.ServeHTTP(httptest.NewRecorder(), req)
			So(got, ShouldEqual, "alice")
		})

		Convey("缺省时使用默认身份", func() {
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			So(got, ShouldEqual, "default_user")
		})
	})
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("RequestID 分配请求ID", t, func() {
		var fromCtx string
		r := gin.New()
		r.Use(RequestID())
		r.GET("/", func(c *gin.Context) {
			fromCtx = ctxutil.GetRequestID(c.Request.Context())
			c.Status(http.StatusOK)
		})

		Convey("生成新ID并回写响应头", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			So(fromCtx, ShouldNotBeEmpty)
			So(w.Header().Get(RequestIDHeader), ShouldEqual, fromCtx)
		})

		Convey("沿用合法的客户端ID", func() {
			const rid = "2f1c7a52-8a3e-4b4e-9d7a-0c6f1f0b9e11"
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, rid)
			r.ServeHTTP(httptest.NewRecorder(), req)
			So(fromCtx, ShouldEqual, rid)
		})

		Convey("丢弃非法的客户端ID", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, "not-a-uuid")
			r.ServeHTTP(httptest.NewRecorder(), req)
			So(fromCtx, ShouldNotEqual, "not-a-uuid")
		})
	})
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("预检请求直接返回", t, func() {
		r := gin.New()
		r.Use(CORS())
		r.POST("/api", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodOptions, "/api", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		So(w.Code, ShouldEqual, http.StatusNoContent)
		So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://localhost:5173")
	})
}

func TestRateLimit_Local(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("无 Redis 时使用进程内令牌桶", t, func() {
		r := gin.New()
		r.Use(RateLimit(nil, 1))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			codes = append(codes, w.Code)
		}

		So(codes[0], ShouldEqual, http.StatusOK)
		So(codes[1], ShouldEqual, http.StatusOK)
		So(codes[2], ShouldEqual, http.StatusTooManyRequests)
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("panic 转为 500", t, func() {
		r := gin.New()
		r.Use(Recovery())
		r.GET("/", func(c *gin.Context) { panic("boom") })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		So(w.Code, ShouldEqual, http.StatusInternalServerError)
	})
}

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("请求日志", t, func() {
		saved := log.Logger
		defer func() { log.Logger = saved }()
		var buf bytes.Buffer
		log.Logger = zerolog.New(&buf)

		r := gin.New()
		r.Use(RequestID(), UserIdentity("default_user"), Logger())
		r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.GET("/stream", func(c *gin.Context) {
			c.Header("Content-Type", "text/event-stream")
			c.String(http.StatusOK, "data: {}\n\n")
		})

		Convey("探活请求不记录", func() {
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
			So(buf.Len(), ShouldEqual, 0)
		})

		Convey("记录请求ID、用户与流式标记", func() {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

			line := buf.String()
			So(line, ShouldContainSubstring, `"request_id":"`+w.Header().Get(RequestIDHeader)+`"`)
			So(line, ShouldContainSubstring, `"user_id":"default_user"`)
			So(line, ShouldContainSubstring, `"stream":true`)
			So(line, ShouldContainSubstring, `"route":"/stream"`)
		})
	})
}
