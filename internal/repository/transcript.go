package repository

import (
	"context"
	"errors"
	"time"

	"webchat/internal/model/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
)

// DefaultTitle 未指定标题时的占位标题
const DefaultTitle = "新对话"

// TranscriptStore 对话记录存储
// 对话与消息两类实体，消息按创建时间升序排列；删除对话时级联删除其消息且对并发读者原子可见
type TranscriptStore interface {
	// EnsureConversation id 为空时创建新对话；id 不为空时查找，不存在则以该 id 创建
	EnsureConversation(ctx context.Context, id, title, userID string) (*chat.Conversation, error)

	// GetConversation 查询对话，不存在时返回 ErrConversationNotFound
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)

	// GetExternalID 返回上游会话句柄，对话不存在时返回空串
	GetExternalID(ctx context.Context, id string) string

	// AppendMessage 追加消息，返回消息ID
	AppendMessage(ctx context.Context, msg *chat.Message) (string, error)

	// UpdateAfterTurn 写入上游会话句柄并刷新更新时间，空句柄不会覆盖已有值
	UpdateAfterTurn(ctx context.Context, id, externalID string, at time.Time) error

	// UpdateTitle 修改标题并刷新更新时间
	UpdateTitle(ctx context.Context, id, title string) error

	// ListMessages 按创建时间升序返回对话消息
	ListMessages(ctx context.Context, conversationID string) ([]*chat.Message, error)

	// ListConversations 按更新时间倒序返回对话，userID 为空时不过滤用户
	ListConversations(ctx context.Context, userID string, limit int) ([]*chat.Conversation, error)

	// DeleteConversation 删除对话及其全部消息
	DeleteConversation(ctx context.Context, id string) error

	// Ping 检查存储连通性
	Ping(ctx context.Context) error

	// Close 释放连接
	Close(ctx context.Context) error
}
