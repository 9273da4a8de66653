package chat

import (
	"encoding/json"
	"time"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation 对话实体
// ExternalID 为上游服务在首轮成功后分配的会话句柄，一旦写入后续轮次都沿用
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ExternalID string    `json:"dify_conversation_id,omitempty"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message 对话消息
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Role              Role      `json:"role"`
	Content           string    `json:"content"`
	Files             []FileRef `json:"files"`
	ExternalMessageID string    `json:"dify_message_id,omitempty"` // 仅 assistant 消息
	CreatedAt         time.Time `json:"created_at"`
}

// FileRef 附件引用，与上游 files 字段结构一致
type FileRef struct {
	Type           string `json:"type" bson:"type"`                                         // image, document, audio ...
	TransferMethod string `json:"transfer_method" bson:"transfer_method"`                   // local_file, remote_url
	UploadFileID   string `json:"upload_file_id,omitempty" bson:"upload_file_id,omitempty"` // local_file 时使用
	URL            string `json:"url,omitempty" bson:"url,omitempty"`                       // remote_url 时使用
}

// EncodeFiles 将附件列表编码为存储用 JSON，空列表返回空串
func EncodeFiles(files []FileRef) string {
	if len(files) == 0 {
		return ""
	}
	data, err := json.Marshal(files)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodeFiles 解析存储中的附件 JSON
// 数据损坏时降级为空列表，不影响整条消息的读取
func DecodeFiles(raw string) []FileRef {
	if raw == "" {
		return []FileRef{}
	}
	var files []FileRef
	if err := json.Unmarshal([]byte(raw), &files); err != nil || files == nil {
		return []FileRef{}
	}
	return files
}
