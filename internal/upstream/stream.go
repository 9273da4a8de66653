package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// chatStream 单个回合的事件序列，不支持并发调用
type chatStream struct {
	client *Client
	req    ChatRequest

	ctx    context.Context
	cancel context.CancelCauseFunc

	started bool
	done    bool
	current Event

	resp   *http.Response
	body   *idleTimeoutReader
	reader *unitReader

	answer         strings.Builder
	conversationID string
	taskID         string

	closeOnce sync.Once
}

func newChatStream(ctx context.Context, client *Client, req ChatRequest) *chatStream {
	streamCtx, cancel := context.WithCancelCause(ctx)
	return &chatStream{
		client:         client,
		req:            req,
		ctx:            streamCtx,
		cancel:         cancel,
		conversationID: req.ConversationID,
	}
}

// Next 推进到下一个事件
func (s *chatStream) Next() bool {
	if s.done {
		return false
	}
	if !s.started {
		s.started = true
		s.current = Event{Kind: EventStarted}
		return true
	}

	if s.reader == nil {
		if ev, ok := s.open(); !ok {
			s.finish(ev)
			return true
		}
	}

	for {
		u, err := s.reader.Next()
		if err != nil {
			s.finish(s.readFailure(err))
			return true
		}

		switch u.Event {
		case unitMessage, unitAgentMessage:
			if u.ConversationID != "" {
				s.conversationID = u.ConversationID
			}
			if u.TaskID != "" {
				s.taskID = u.TaskID
			}
			if u.Answer == "" {
				continue
			}
			s.answer.WriteString(u.Answer)
			s.current = Event{
				Kind:           EventDelta,
				Text:           u.Answer,
				TaskID:         s.taskID,
				ConversationID: s.conversationID,
			}
			return true

		case unitMessageEnd, unitAgentMessageEnd:
			if u.ConversationID != "" {
				s.conversationID = u.ConversationID
			}
			s.finish(Event{
				Kind:           EventCompleted,
				Text:           s.answer.String(),
				TaskID:         s.taskID,
				ConversationID: s.conversationID,
				MessageID:      u.ID,
			})
			return true

		case unitError:
			msg := u.Message
			if msg == "" {
				msg = msgUnknown
			}
			s.finish(Event{Kind: EventError, Message: msg, TaskID: s.taskID})
			return true

		case unitPing:
			continue

		default:
			continue
		}
	}
}

// Event 当前事件
func (s *chatStream) Event() Event {
	return s.current
}

// Close 放弃剩余事件并释放连接
func (s *chatStream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.cancel(context.Canceled)
		if s.body != nil {
			s.body.stop()
		}
		if s.resp != nil {
			s.resp.Body.Close()
		}
	})
	return nil
}

// open 发出请求；失败时返回终止事件
func (s *chatStream) open() (Event, bool) {
	resp, err := s.client.openChat(s.ctx, s.req)
	if err != nil {
		return s.failure(err), false
	}
	s.resp = resp

	if resp.StatusCode/100 != 2 {
		snippet := readErrorSnippet(resp.Body, s.client.snippetRunes)
		log.Warn().
			Int("status", resp.StatusCode).
			Str("body", snippet).
			Msg("Upstream rejected chat request")
		return Event{Kind: EventError, Message: fmt.Sprintf("API错误(%d): %s", resp.StatusCode, snippet)}, false
	}

	s.body = newIdleTimeoutReader(resp.Body, s.client.readTimeout, func() {
		s.cancel(errReadTimeout)
	})
	s.reader = newUnitReader(s.body)
	return Event{}, true
}

// readFailure 读取过程中的错误
func (s *chatStream) readFailure(err error) Event {
	if errors.Is(err, io.EOF) && s.ctx.Err() == nil {
		return Event{Kind: EventError, Message: msgIncomplete, TaskID: s.taskID}
	}
	return s.failure(err)
}

// failure 把传输层错误映射为终止事件
func (s *chatStream) failure(err error) Event {
	kind := classify(err, s.ctx)
	if kind == failureCanceled {
		return Event{Kind: EventStopped, TaskID: s.taskID}
	}
	log.Warn().Err(err).Str("task_id", s.taskID).Msg("Upstream stream failed")
	return Event{Kind: EventError, Message: failureMessage(kind, err), TaskID: s.taskID}
}

// finish 设置终止事件并释放连接
func (s *chatStream) finish(ev Event) {
	s.current = ev
	s.Close()
}

// idleTimeoutReader 连续 timeout 未读到数据时触发 onTimeout
type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newIdleTimeoutReader(r io.Reader, timeout time.Duration, onTimeout func()) *idleTimeoutReader {
	return &idleTimeoutReader{
		r:       r,
		timeout: timeout,
		timer:   time.AfterFunc(timeout, onTimeout),
	}
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleTimeoutReader) stop() {
	r.timer.Stop()
}
