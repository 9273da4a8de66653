package chat

// EventType 客户端事件类型
type EventType string

const (
	EventStart   EventType = "start"
	EventChunk   EventType = "chunk"
	EventStopped EventType = "stopped"
	EventError   EventType = "error"
	EventDone    EventType = "done"
)

// ChatEvent 推送给浏览器的流式事件，每个事件序列化为一个 JSON 对象
// 每一轮以 start 开始，以 stopped / error / done 之一结束
type ChatEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	TaskID         string    `json:"task_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// IsTerminal 是否为终止事件
func (e ChatEvent) IsTerminal() bool {
	switch e.Type {
	case EventStopped, EventError, EventDone:
		return true
	}
	return false
}

func StartEvent(conversationID string) ChatEvent {
	return ChatEvent{Type: EventStart, ConversationID: conversationID}
}

func ChunkEvent(content, taskID string) ChatEvent {
	return ChatEvent{Type: EventChunk, Content: content, TaskID: taskID}
}

func StoppedEvent() ChatEvent {
	return ChatEvent{Type: EventStopped}
}

func ErrorEvent(msg string) ChatEvent {
	return ChatEvent{Type: EventError, Error: msg}
}

func DoneEvent(conversationID, title string) ChatEvent {
	return ChatEvent{Type: EventDone, ConversationID: conversationID, Title: title}
}
