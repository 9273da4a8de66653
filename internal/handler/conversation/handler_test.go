package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"webchat/internal/config"
	"webchat/internal/model/chat"
	"webchat/internal/repository/sqlstore"
	"webchat/internal/server/middleware"
	"webchat/internal/service"
)

func newTestRouter() (*gin.Engine, *sqlstore.Store) {
	gin.SetMode(gin.TestMode)

	store, err := sqlstore.OpenSQLite(":memory:")
	So(err, ShouldBeNil)
	So(store.Migrate(context.Background()), ShouldBeNil)

	h := NewHandler(service.NewConversationService(store, config.ChatConfig{}))
	r := gin.New()
	r.Use(middleware.UserIdentity("default_user"))
	g := r.Group("/api/v1/conversations")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/messages", h.Messages)
	g.PUT("/:id/title", h.Rename)
	g.DELETE("/:id", h.Delete)
	return r, store
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConversationHandler(t *testing.T) {
	Convey("对话管理接口", t, func() {
		r, store := newTestRouter()
		defer store.Close(context.Background())

		w := do(r, http.MethodPost, "/api/v1/conversations", CreateRequest{Title: "  旅行计划  "})
		So(w.Code, ShouldEqual, http.StatusCreated)
		var conv chat.Conversation
		So(json.Unmarshal(w.Body.Bytes(), &conv), ShouldBeNil)
		So(conv.Title, ShouldEqual, "旅行计划")
		So(conv.UserID, ShouldEqual, "default_user")

		Convey("列表与详情", func() {
			w := do(r, http.MethodGet, "/api/v1/conversations?user=default_user", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var convs []chat.Conversation
			So(json.Unmarshal(w.Body.Bytes(), &convs), ShouldBeNil)
			So(convs, ShouldHaveLength, 1)

			w = do(r, http.MethodGet, "/api/v1/conversations?user=someone-else", nil)
			So(w.Body.String(), ShouldEqual, "[]")

			w = do(r, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
			So(w.Code, ShouldEqual, http.StatusOK)

			w = do(r, http.MethodGet, "/api/v1/conversations/missing", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("消息按时间顺序返回", func() {
			ctx := context.Background()
			_, _ = store.AppendMessage(ctx, &chat.Message{ConversationID: conv.ID, Role: chat.RoleUser, Content: "q"})
			_, _ = store.AppendMessage(ctx, &chat.Message{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "a"})

			w := do(r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var msgs []chat.Message
			So(json.Unmarshal(w.Body.Bytes(), &msgs), ShouldBeNil)
			So(msgs, ShouldHaveLength, 2)
			So(msgs[0].Content, ShouldEqual, "q")
			So(msgs[1].Files, ShouldNotBeNil)
		})

		Convey("重命名", func() {
			w := do(r, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/title", RenameRequest{Title: "  "})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "新对话")

			w = do(r, http.MethodPut, "/api/v1/conversations/missing/title", RenameRequest{Title: "x"})
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("删除后不可再查询", func() {
			w := do(r, http.MethodDelete, "/api/v1/conversations/"+conv.ID, nil)
			So(w.Code, ShouldEqual, http.StatusOK)

			w = do(r, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
