package upstream

import (
	"context"

	"webchat/internal/model/chat"
)

// EventKind 归一化后的流事件类型
type EventKind int

const (
	EventStarted EventKind = iota
	EventDelta
	EventCompleted
	EventError
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDelta:
		return "delta"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event 归一化后的流事件
//
//	Started
//	Delta(Text, TaskID, ConversationID)
//	Completed(ConversationID, MessageID, Text)
//	Error(Message)
//	Stopped
type Event struct {
	Kind           EventKind
	Text           string // Delta 为本次片段，Completed 为完整回答
	TaskID         string
	ConversationID string
	MessageID      string
	Message        string // Error 的提示信息
}

// ChatRequest 一次用户回合
type ChatRequest struct {
	Query          string
	Files          []chat.FileRef
	User           string
	ConversationID string // 上游会话句柄，新对话为空
}

// Stream 惰性、有限、不可重启的事件序列
// 第一个事件总是 Started，最后一个事件是 Completed、Error、Stopped 之一
type Stream interface {
	// Next 推进到下一个事件，序列结束后返回 false
	Next() bool
	// Event 当前事件
	Event() Event
	// Close 放弃剩余事件并释放连接，可重复调用
	Close() error
}

// Relay 上游对话服务
type Relay interface {
	// Stream 打开一次流式回合；请求在第一次需要数据时才发出
	Stream(ctx context.Context, req ChatRequest) Stream
	// StopTask 请求上游停止生成
	StopTask(ctx context.Context, taskID, user string) error
}
