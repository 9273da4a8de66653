package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"webchat/internal/ai"
	"webchat/internal/cancel"
	"webchat/internal/config"
	"webchat/internal/model/chat"
	"webchat/internal/repository/sqlstore"
	"webchat/internal/server/middleware"
	"webchat/internal/service"
	"webchat/internal/upstream"
)

type testEnv struct {
	router *gin.Engine
	store  *sqlstore.Store
}

func newTestEnv(upstreamHandler http.HandlerFunc) (*testEnv, func()) {
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(upstreamHandler)
	store, err := sqlstore.OpenSQLite(":memory:")
	So(err, ShouldBeNil)
	So(store.Migrate(context.Background()), ShouldBeNil)

	client := upstream.NewClient(&config.UpstreamConfig{
		BaseURL:       srv.URL,
		APIKey:        "app-test",
		ReadTimeout:   2 * time.Second,
		UploadTimeout: 2 * time.Second,
		AudioTimeout:  2 * time.Second,
	})
	chatService := service.NewChatService(store, client, cancel.NewRegistry(), config.ChatConfig{})
	fileService := service.NewFileService(client, nil)
	titleService := service.NewTitleService(ai.NewTitleGenerator(nil, 0, 0, ""), nil, time.Second)

	h := NewHandler(chatService, fileService, titleService)
	r := gin.New()
	r.Use(middleware.UserIdentity("default_user"))
	r.POST("/api/v1/chat", h.Chat)
	r.POST("/api/v1/chat/stop", h.Stop)
	r.POST("/api/v1/upload", h.Upload)
	r.POST("/api/v1/audio-to-text", h.AudioToText)

	return &testEnv{router: r, store: store}, func() {
		srv.Close()
		_ = store.Close(context.Background())
	}
}

func (e *testEnv) postJSON(path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postFile(path, field, name string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, _ := mw.CreateFormFile(field, name)
		_, _ = fw.Write(data)
	}
	_ = mw.WriteField("user", "u1")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// parseEvents 解析 SSE 响应中的 data 行
func parseEvents(body string) []chat.ChatEvent {
	var events []chat.ChatEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var evt chat.ChatEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &evt); err == nil {
			events = append(events, evt)
		}
	}
	return events
}

func chatUpstream(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/chat-messages"):
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range []string{
			`data: {"event":"message","answer":"Hi","conversation_id":"ext-1","task_id":"t-1"}`,
			`data: {"event":"message","answer":" there","conversation_id":"ext-1","task_id":"t-1"}`,
			`data: {"event":"message_end","id":"msg-1","conversation_id":"ext-1"}`,
		} {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	case strings.HasSuffix(r.URL.Path, "/files/upload"):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"file-1","name":"a.txt"}`)
	case strings.HasSuffix(r.URL.Path, "/audio-to-text"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"你好"}`)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"result":"success"}`)
	}
}

func TestHandler_Chat(t *testing.T) {
	Convey("流式对话接口", t, func() {
		env, cleanup := newTestEnv(chatUpstream)
		defer cleanup()

		Convey("正常回合返回事件流", func() {
			w := env.postJSON("/api/v1/chat", ChatRequest{Query: "Hello"})

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "text/event-stream")

			events := parseEvents(w.Body.String())
			So(len(events), ShouldBeGreaterThanOrEqualTo, 4)
			So(events[0].Type, ShouldEqual, chat.EventStart)
			So(events[1].Content, ShouldEqual, "Hi")
			So(events[2].Content, ShouldEqual, " there")
			last := events[len(events)-1]
			So(last.Type, ShouldEqual, chat.EventDone)
			So(last.Title, ShouldEqual, "Hello")

			msgs, err := env.store.ListMessages(context.Background(), events[0].ConversationID)
			So(err, ShouldBeNil)
			So(msgs, ShouldHaveLength, 2)
			So(msgs[1].Content, ShouldEqual, "Hi there")

			conv, err := env.store.GetConversation(context.Background(), events[0].ConversationID)
			So(err, ShouldBeNil)
			So(conv.UserID, ShouldEqual, "default_user")
		})

		Convey("空查询返回 400", func() {
			w := env.postJSON("/api/v1/chat", ChatRequest{Query: "  "})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "40002")
		})

		Convey("未知对话ID照常流式返回", func() {
			w := env.postJSON("/api/v1/chat", ChatRequest{ConversationID: "missing", Query: "hi"})
			So(w.Code, ShouldEqual, http.StatusOK)

			events := parseEvents(w.Body.String())
			So(events[0].ConversationID, ShouldEqual, "missing")
			So(events[len(events)-1].Type, ShouldEqual, chat.EventDone)
		})

		Convey("非法请求体返回 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{"))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestHandler_Stop(t *testing.T) {
	Convey("停止接口对空闲对话同样成功", t, func() {
		env, cleanup := newTestEnv(chatUpstream)
		defer cleanup()

		w := env.postJSON("/api/v1/chat/stop", StopRequest{ConversationID: "idle", TaskID: "t-1"})
		So(w.Code, ShouldEqual, http.StatusOK)
		So(w.Body.String(), ShouldContainSubstring, `"success":true`)
		So(w.Body.String(), ShouldContainSubstring, `"local":false`)
	})
}

func TestHandler_Files(t *testing.T) {
	Convey("文件透传接口", t, func() {
		env, cleanup := newTestEnv(chatUpstream)
		defer cleanup()

		Convey("上传透传上游状态码与响应体", func() {
			w := env.postFile("/api/v1/upload", "file", "a.txt", []byte("hello"))
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, "file-1")
		})

		Convey("缺少文件返回 400", func() {
			w := env.postFile("/api/v1/upload", "", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "No file provided")
		})

		Convey("语音识别透传", func() {
			w := env.postFile("/api/v1/audio-to-text", "file", "blob", []byte("RIFF"))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "你好")
		})

		Convey("缺少音频返回 400", func() {
			w := env.postFile("/api/v1/audio-to-text", "", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "No audio file provided")
		})
	})
}

func TestHandler_UploadTimeout(t *testing.T) {
	Convey("上游上传超时返回 504", t, func() {
		release := make(chan struct{})
		env, cleanup := newTestEnv(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer cleanup()
		defer close(release)

		w := env.postFile("/api/v1/upload", "file", "a.txt", []byte("hello"))
		So(w.Code, ShouldEqual, http.StatusGatewayTimeout)
		So(w.Body.String(), ShouldContainSubstring, "上传超时，请重试")
	})
}
