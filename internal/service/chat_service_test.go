package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"webchat/internal/cancel"
	"webchat/internal/config"
	"webchat/internal/model/chat"
	"webchat/internal/repository/sqlstore"
	"webchat/internal/upstream"
)

// fakeStream 按顺序回放事件
type fakeStream struct {
	events []upstream.Event
	idx    int
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.closed || s.idx >= len(s.events) {
		return false
	}
	s.idx++
	return true
}

func (s *fakeStream) Event() upstream.Event { return s.events[s.idx-1] }

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeRelay struct {
	events   []upstream.Event
	requests []upstream.ChatRequest
	stopped  []string
	stopErr  error
}

func (r *fakeRelay) Stream(ctx context.Context, req upstream.ChatRequest) upstream.Stream {
	r.requests = append(r.requests, req)
	return &fakeStream{events: append([]upstream.Event{{Kind: upstream.EventStarted}}, r.events...)}
}

func (r *fakeRelay) StopTask(ctx context.Context, taskID, user string) error {
	r.stopped = append(r.stopped, taskID)
	return r.stopErr
}

type fakeNotifier struct{ published []string }

func (n *fakeNotifier) Publish(ctx context.Context, convID string) error {
	n.published = append(n.published, convID)
	return nil
}

func completedTurn(pieces []string, external, msgID string) []upstream.Event {
	var events []upstream.Event
	for _, p := range pieces {
		events = append(events, upstream.Event{Kind: upstream.EventDelta, Text: p, TaskID: "t-1", ConversationID: external})
	}
	return append(events, upstream.Event{
		Kind:           upstream.EventCompleted,
		Text:           strings.Join(pieces, ""),
		TaskID:         "t-1",
		ConversationID: external,
		MessageID:      msgID,
	})
}

func newStore(t *testing.T) *sqlstore.Store {
	store, err := sqlstore.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func recorder(events *[]chat.ChatEvent) EventSink {
	return func(evt chat.ChatEvent) error {
		*events = append(*events, evt)
		return nil
	}
}

func chunkText(events []chat.ChatEvent) string {
	var b strings.Builder
	for _, e := range events {
		if e.Type == chat.EventChunk {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

func assertFraming(events []chat.ChatEvent) {
	So(len(events), ShouldBeGreaterThanOrEqualTo, 2)
	So(events[0].Type, ShouldEqual, chat.EventStart)
	for _, e := range events[1 : len(events)-1] {
		So(e.Type, ShouldEqual, chat.EventChunk)
	}
	So(events[len(events)-1].IsTerminal(), ShouldBeTrue)
}

func TestChatService_Chat(t *testing.T) {
	Convey("流式对话编排", t, func() {
		ctx := context.Background()
		store := newStore(t)
		defer store.Close(ctx)
		registry := cancel.NewRegistry()
		relay := &fakeRelay{}
		svc := NewChatService(store, relay, registry, config.ChatConfig{})

		Convey("空查询直接拒绝且无副作用", func() {
			var events []chat.ChatEvent
			err := svc.Chat(ctx, &ChatRequest{Query: "   ", User: "u1"}, recorder(&events))
			So(err, ShouldEqual, ErrEmptyQuery)
			So(events, ShouldBeEmpty)
			convs, _ := store.ListConversations(ctx, "", 10)
			So(convs, ShouldBeEmpty)
			So(relay.requests, ShouldBeEmpty)
		})

		Convey("新对话的完整回合", func() {
			relay.events = completedTurn([]string{"Hi", " there", "!"}, "ext-1", "msg-1")

			var events []chat.ChatEvent
			err := svc.Chat(ctx, &ChatRequest{Query: "Hello", User: "u1"}, recorder(&events))
			So(err, ShouldBeNil)
			assertFraming(events)

			convID := events[0].ConversationID
			So(convID, ShouldNotBeEmpty)
			last := events[len(events)-1]
			So(last.Type, ShouldEqual, chat.EventDone)
			So(last.ConversationID, ShouldEqual, convID)
			So(last.Title, ShouldEqual, "Hello")
			So(events[1].TaskID, ShouldEqual, "t-1")

			So(relay.requests[0].ConversationID, ShouldEqual, "")
			So(relay.requests[0].User, ShouldEqual, "u1")

			msgs, _ := store.ListMessages(ctx, convID)
			So(msgs, ShouldHaveLength, 2)
			So(msgs[0].Role, ShouldEqual, chat.RoleUser)
			So(msgs[0].Content, ShouldEqual, "Hello")
			So(msgs[1].Role, ShouldEqual, chat.RoleAssistant)
			So(msgs[1].Content, ShouldEqual, chunkText(events))
			So(msgs[1].ExternalMessageID, ShouldEqual, "msg-1")
			So(store.GetExternalID(ctx, convID), ShouldEqual, "ext-1")
			So(registry.Len(), ShouldEqual, 0)

			Convey("后续回合沿用上游句柄，空句柄不覆盖", func() {
				relay.events = completedTurn([]string{"again"}, "", "msg-2")
				var second []chat.ChatEvent
				err := svc.Chat(ctx, &ChatRequest{ConversationID: convID, Query: "more", User: "u1"}, recorder(&second))
				So(err, ShouldBeNil)
				So(second[0].ConversationID, ShouldEqual, convID)
				So(second[len(second)-1].Type, ShouldEqual, chat.EventDone)
				So(relay.requests[1].ConversationID, ShouldEqual, "ext-1")
				So(store.GetExternalID(ctx, convID), ShouldEqual, "ext-1")

				msgs, _ := store.ListMessages(ctx, convID)
				So(msgs, ShouldHaveLength, 4)
			})
		})

		Convey("标题取查询前 60 个字符", func() {
			relay.events = completedTurn([]string{"ok"}, "ext-1", "msg-1")
			query := strings.Repeat("长", 100)
			var events []chat.ChatEvent
			So(svc.Chat(ctx, &ChatRequest{Query: query}, recorder(&events)), ShouldBeNil)
			So(events[len(events)-1].Title, ShouldEqual, strings.Repeat("长", 60))
		})

		Convey("客户端给出的对话ID不存在时按新上下文继续", func() {
			relay.events = completedTurn([]string{"ok"}, "ext-9", "msg-9")

			var events []chat.ChatEvent
			err := svc.Chat(ctx, &ChatRequest{ConversationID: "does-not-exist", Query: "hi", User: "u1"}, recorder(&events))
			So(err, ShouldBeNil)
			assertFraming(events)
			So(events[0].ConversationID, ShouldEqual, "does-not-exist")
			So(events[len(events)-1].Type, ShouldEqual, chat.EventDone)

			So(relay.requests, ShouldHaveLength, 1)
			So(relay.requests[0].ConversationID, ShouldBeEmpty)

			conv, err := store.GetConversation(ctx, "does-not-exist")
			So(err, ShouldBeNil)
			So(conv.Title, ShouldEqual, "hi")
			So(conv.ExternalID, ShouldEqual, "ext-9")

			msgs, _ := store.ListMessages(ctx, "does-not-exist")
			So(msgs, ShouldHaveLength, 2)
			So(registry.Len(), ShouldEqual, 0)
		})

		Convey("上游 error 事件不保存助手消息", func() {
			relay.events = []upstream.Event{
				{Kind: upstream.EventDelta, Text: "par", TaskID: "t-1"},
				{Kind: upstream.EventError, Message: "quota exceeded"},
			}
			var events []chat.ChatEvent
			So(svc.Chat(ctx, &ChatRequest{Query: "hi"}, recorder(&events)), ShouldBeNil)
			assertFraming(events)
			So(events[len(events)-1].Error, ShouldEqual, "quota exceeded")

			msgs, _ := store.ListMessages(ctx, events[0].ConversationID)
			So(msgs, ShouldHaveLength, 1)
			So(msgs[0].Role, ShouldEqual, chat.RoleUser)
		})

		Convey("两个片段后请求停止", func() {
			relay.events = completedTurn([]string{"a", "b", "c", "d"}, "ext-1", "msg-1")

			var events []chat.ChatEvent
			sink := func(evt chat.ChatEvent) error {
				events = append(events, evt)
				if evt.Type == chat.EventChunk && chunkCount(events) == 2 {
					So(svc.RequestStop(ctx, events[0].ConversationID, "", "u1"), ShouldBeTrue)
				}
				return nil
			}
			So(svc.Chat(ctx, &ChatRequest{Query: "hi", User: "u1"}, sink), ShouldBeNil)
			assertFraming(events)
			So(events[len(events)-1].Type, ShouldEqual, chat.EventStopped)
			So(chunkCount(events), ShouldEqual, 2)

			msgs, _ := store.ListMessages(ctx, events[0].ConversationID)
			So(msgs, ShouldHaveLength, 1)
			So(msgs[0].Role, ShouldEqual, chat.RoleUser)
			So(registry.Len(), ShouldEqual, 0)
		})

		Convey("开启保留部分回答", func() {
			svc := NewChatService(store, relay, registry, config.ChatConfig{PersistPartialOnStop: true})
			relay.events = completedTurn([]string{"a", "b", "c"}, "ext-1", "msg-1")

			var events []chat.ChatEvent
			sink := func(evt chat.ChatEvent) error {
				events = append(events, evt)
				if chunkCount(events) == 2 {
					svc.RequestStop(ctx, events[0].ConversationID, "", "")
				}
				return nil
			}
			So(svc.Chat(ctx, &ChatRequest{Query: "hi"}, sink), ShouldBeNil)
			So(events[len(events)-1].Type, ShouldEqual, chat.EventStopped)

			msgs, _ := store.ListMessages(ctx, events[0].ConversationID)
			So(msgs, ShouldHaveLength, 2)
			So(msgs[1].Content, ShouldEqual, "ab")
			So(store.GetExternalID(ctx, events[0].ConversationID), ShouldEqual, "ext-1")
		})

		Convey("客户端断开后放弃流并注销标记", func() {
			relay.events = completedTurn([]string{"a", "b"}, "ext-1", "msg-1")
			gone := errors.New("client gone")
			sink := func(evt chat.ChatEvent) error {
				if evt.Type == chat.EventChunk {
					return gone
				}
				return nil
			}
			err := svc.Chat(ctx, &ChatRequest{Query: "hi"}, sink)
			So(err, ShouldEqual, gone)
			So(registry.Len(), ShouldEqual, 0)
		})

		Convey("上游没有终止事件", func() {
			relay.events = []upstream.Event{{Kind: upstream.EventDelta, Text: "x"}}
			var events []chat.ChatEvent
			So(svc.Chat(ctx, &ChatRequest{Query: "hi"}, recorder(&events)), ShouldBeNil)
			assertFraming(events)
			So(events[len(events)-1].Type, ShouldEqual, chat.EventError)
		})
	})
}

func chunkCount(events []chat.ChatEvent) int {
	n := 0
	for _, e := range events {
		if e.Type == chat.EventChunk {
			n++
		}
	}
	return n
}

func TestChatService_UpstreamFailure(t *testing.T) {
	Convey("上游返回 500", t, func() {
		ctx := context.Background()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, "server overloaded")
		}))
		defer srv.Close()

		store := newStore(t)
		defer store.Close(ctx)
		relay := upstream.NewClient(&config.UpstreamConfig{BaseURL: srv.URL, APIKey: "k"})
		svc := NewChatService(store, relay, cancel.NewRegistry(), config.ChatConfig{})

		var events []chat.ChatEvent
		So(svc.Chat(ctx, &ChatRequest{Query: "Hello"}, recorder(&events)), ShouldBeNil)
		So(events, ShouldHaveLength, 2)
		So(events[0].Type, ShouldEqual, chat.EventStart)
		So(events[1].Type, ShouldEqual, chat.EventError)
		So(events[1].Error, ShouldContainSubstring, "server overloaded")

		msgs, _ := store.ListMessages(ctx, events[0].ConversationID)
		So(msgs, ShouldHaveLength, 1)
		So(msgs[0].Role, ShouldEqual, chat.RoleUser)
		So(msgs[0].Content, ShouldEqual, "Hello")
	})
}

func TestChatService_RequestStop(t *testing.T) {
	Convey("停止请求", t, func() {
		ctx := context.Background()
		relay := &fakeRelay{}
		notifier := &fakeNotifier{}
		svc := NewChatService(nil, relay, cancel.NewRegistry(), config.ChatConfig{})
		svc.SetStopNotifier(notifier)

		Convey("没有进行中的回合时无副作用", func() {
			So(svc.RequestStop(ctx, "c1", "", "u1"), ShouldBeFalse)
			So(relay.stopped, ShouldBeEmpty)
			So(notifier.published, ShouldResemble, []string{"c1"})
		})

		Convey("上游停止失败被忽略", func() {
			relay.stopErr = errors.New("unreachable")
			So(svc.RequestStop(ctx, "c1", "t-1", "u1"), ShouldBeFalse)
			So(relay.stopped, ShouldResemble, []string{"t-1"})
		})
	})
}
