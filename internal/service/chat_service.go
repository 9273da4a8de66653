package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"webchat/internal/cancel"
	"webchat/internal/config"
	"webchat/internal/model/chat"
	"webchat/internal/pkg/logger"
	"webchat/internal/pkg/textutil"
	"webchat/internal/repository"
	"webchat/internal/upstream"
)

var (
	// ErrEmptyQuery 查询内容为空
	ErrEmptyQuery = errors.New("query is required")
)

// ChatRequest 一轮对话请求
type ChatRequest struct {
	ConversationID string
	Query          string
	Files          []chat.FileRef
	User           string
}

// EventSink 接收推送给客户端的事件；返回错误表示客户端已不可写
type EventSink func(evt chat.ChatEvent) error

// StopNotifier 将停止请求广播到其他实例
type StopNotifier interface {
	Publish(ctx context.Context, conversationID string) error
}

// ChatService 对话编排服务
// 状态流转: Init → ConversationResolved → Streaming → {Completed | Stopped | Failed}
type ChatService struct {
	store    repository.TranscriptStore
	relay    upstream.Relay
	registry *cancel.Registry
	notifier StopNotifier
	cfg      config.ChatConfig
}

// NewChatService 创建对话编排服务
func NewChatService(store repository.TranscriptStore, relay upstream.Relay, registry *cancel.Registry, cfg config.ChatConfig) *ChatService {
	if cfg.TitleMaxRunes <= 0 {
		cfg.TitleMaxRunes = 60
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = repository.DefaultTitle
	}
	return &ChatService{
		store:    store,
		relay:    relay,
		registry: registry,
		cfg:      cfg,
	}
}

// SetStopNotifier 设置多实例停止广播，未设置时只作用于本实例
func (s *ChatService) SetStopNotifier(n StopNotifier) {
	s.notifier = n
}

// Chat 执行一轮流式对话
// 流开始前的失败（空查询、对话不存在、存储错误）以 error 返回，调用方尚未发送任何事件；
// 流开始后的一切失败都转为 error 事件，返回值仅表示客户端已断开
func (s *ChatService) Chat(ctx context.Context, req *ChatRequest, emit EventSink) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return ErrEmptyQuery
	}

	convID, external, err := s.resolveConversation(ctx, req.ConversationID, query, req.User)
	if err != nil {
		return err
	}

	l := logger.Ctx(ctx).With().Str("conversation_id", convID).Logger()

	userMsg := &chat.Message{
		ConversationID: convID,
		Role:           chat.RoleUser,
		Content:        query,
		Files:          req.Files,
	}
	if _, err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}

	handle := s.registry.Register(convID)
	defer s.registry.Unregister(handle)

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	go func() {
		select {
		case <-handle.Done():
			stopStream()
		case <-streamCtx.Done():
		}
	}()

	if err := emit(chat.StartEvent(convID)); err != nil {
		return err
	}

	stream := s.relay.Stream(streamCtx, upstream.ChatRequest{
		Query:          query,
		Files:          req.Files,
		User:           req.User,
		ConversationID: external,
	})
	defer stream.Close()

	var (
		partial strings.Builder
		taskID  string
	)

	for stream.Next() {
		if handle.Signalled() {
			stream.Close()
			s.persistPartial(ctx, convID, external, partial.String())
			l.Info().Str("task_id", taskID).Msg("Chat turn stopped")
			return emit(chat.StoppedEvent())
		}

		ev := stream.Event()
		switch ev.Kind {
		case upstream.EventStarted:
			continue

		case upstream.EventDelta:
			partial.WriteString(ev.Text)
			if ev.ConversationID != "" {
				external = ev.ConversationID
			}
			taskID = ev.TaskID
			if err := emit(chat.ChunkEvent(ev.Text, ev.TaskID)); err != nil {
				return err
			}

		case upstream.EventCompleted:
			if ev.ConversationID != "" {
				external = ev.ConversationID
			}
			title, err := s.commitTurn(ctx, convID, external, ev)
			if err != nil {
				l.Error().Err(err).Msg("Failed to persist assistant message")
				return emit(chat.ErrorEvent(upstream.SystemErrorMessage(err)))
			}
			l.Info().
				Str("task_id", ev.TaskID).
				Int("answer_runes", len([]rune(ev.Text))).
				Msg("Chat turn completed")
			return emit(chat.DoneEvent(convID, title))

		case upstream.EventError:
			l.Warn().Str("task_id", ev.TaskID).Str("error", ev.Message).Msg("Chat turn failed")
			return emit(chat.ErrorEvent(ev.Message))

		case upstream.EventStopped:
			s.persistPartial(ctx, convID, external, partial.String())
			l.Info().Msg("Chat turn abandoned by client")
			return emit(chat.StoppedEvent())
		}
	}

	return emit(chat.ErrorEvent(upstream.SystemErrorMessage(errors.New("stream ended unexpectedly"))))
}

// resolveConversation 返回本轮的对话ID与上游会话句柄
// 无 ID 时以查询前若干字符为标题创建对话；客户端给出的 ID 查不到句柄时按无上游上下文处理，并以该 ID 补建对话
func (s *ChatService) resolveConversation(ctx context.Context, convID, query, user string) (string, string, error) {
	title := textutil.TruncateRunes(query, s.cfg.TitleMaxRunes)
	if convID == "" {
		conv, err := s.store.EnsureConversation(ctx, "", title, user)
		if err != nil {
			return "", "", err
		}
		return conv.ID, "", nil
	}

	external := s.store.GetExternalID(ctx, convID)
	if external == "" {
		if _, err := s.store.EnsureConversation(ctx, convID, title, user); err != nil {
			return "", "", err
		}
	}
	return convID, external, nil
}

// commitTurn 写入助手消息与上游句柄，返回当前标题
func (s *ChatService) commitTurn(ctx context.Context, convID, external string, ev upstream.Event) (string, error) {
	// 客户端断开后仍需落库
	ctx = context.WithoutCancel(ctx)
	now := time.Now()

	_, err := s.store.AppendMessage(ctx, &chat.Message{
		ConversationID:    convID,
		Role:              chat.RoleAssistant,
		Content:           ev.Text,
		ExternalMessageID: ev.MessageID,
		CreatedAt:         now,
	})
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateAfterTurn(ctx, convID, external, now); err != nil {
		return "", err
	}

	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return s.cfg.DefaultTitle, nil
	}
	return conv.Title, nil
}

// persistPartial 按配置保留被中断回合的部分回答
func (s *ChatService) persistPartial(ctx context.Context, convID, external, text string) {
	if !s.cfg.PersistPartialOnStop || text == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := time.Now()
	l := logger.Ctx(ctx)

	if _, err := s.store.AppendMessage(ctx, &chat.Message{
		ConversationID: convID,
		Role:           chat.RoleAssistant,
		Content:        text,
		CreatedAt:      now,
	}); err != nil {
		l.Error().Err(err).Str("conversation_id", convID).Msg("Failed to persist partial answer")
		return
	}
	if err := s.store.UpdateAfterTurn(ctx, convID, external, now); err != nil {
		l.Error().Err(err).Str("conversation_id", convID).Msg("Failed to update conversation")
	}
}

// RequestStop 请求停止对话当前回合，返回本实例是否有进行中的回合
// 本地标记是权威路径；广播与上游停止均为尽力而为
func (s *ChatService) RequestStop(ctx context.Context, convID, taskID, user string) bool {
	l := logger.Ctx(ctx).With().Str("conversation_id", convID).Str("task_id", taskID).Logger()

	local := false
	if convID != "" {
		local = s.registry.Signal(convID)
		if s.notifier != nil {
			if err := s.notifier.Publish(ctx, convID); err != nil {
				l.Warn().Err(err).Msg("Failed to broadcast stop")
			}
		}
	}

	if taskID != "" {
		if err := s.relay.StopTask(ctx, taskID, user); err != nil {
			l.Debug().Err(err).Msg("Upstream stop failed")
		}
	}

	l.Info().Bool("local", local).Msg("Stop requested")
	return local
}
