package sqlstore

import (
	"time"

	"webchat/internal/model/chat"
)

// ConversationModel conversations 表
type ConversationModel struct {
	ID         string    `gorm:"primaryKey;size:36;column:id"`
	Title      string    `gorm:"size:255;not null;default:'新对话';column:title"`
	ExternalID string    `gorm:"size:64;column:dify_conversation_id"`
	UserID     string    `gorm:"size:128;index:idx_conv_user;not null;column:user_id"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`
	UpdatedAt  time.Time `gorm:"index:idx_conv_updated,sort:desc;not null;column:updated_at"`
}

func (ConversationModel) TableName() string {
	return "conversations"
}

// MessageModel messages 表
// Seq 自增主键用于同一时间戳内保持写入顺序
type MessageModel struct {
	Seq               uint      `gorm:"primaryKey;autoIncrement;column:seq"`
	MessageID         string    `gorm:"uniqueIndex:idx_message_id;size:36;not null;column:id"`
	ConversationID    string    `gorm:"index:idx_messages_conv;size:36;not null;column:conversation_id"`
	Role              string    `gorm:"size:20;not null;column:role"`
	Content           *string   `gorm:"type:text;column:content"`
	FilesJSON         string    `gorm:"type:text;column:files_json"`
	ExternalMessageID string    `gorm:"size:64;column:dify_message_id"`
	CreatedAt         time.Time `gorm:"not null;column:created_at"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *ConversationModel) ToDomain() *chat.Conversation {
	return &chat.Conversation{
		ID:         m.ID,
		Title:      m.Title,
		ExternalID: m.ExternalID,
		UserID:     m.UserID,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func (m *MessageModel) ToDomain() *chat.Message {
	msg := &chat.Message{
		ID:                m.MessageID,
		ConversationID:    m.ConversationID,
		Role:              chat.Role(m.Role),
		Files:             chat.DecodeFiles(m.FilesJSON),
		ExternalMessageID: m.ExternalMessageID,
		CreatedAt:         m.CreatedAt,
	}
	if m.Content != nil {
		msg.Content = *m.Content
	}
	return msg
}

func toMessageModel(d *chat.Message) *MessageModel {
	m := &MessageModel{
		MessageID:         d.ID,
		ConversationID:    d.ConversationID,
		Role:              string(d.Role),
		FilesJSON:         chat.EncodeFiles(d.Files),
		ExternalMessageID: d.ExternalMessageID,
		CreatedAt:         d.CreatedAt,
	}
	// 仅 assistant 的空回复记为 NULL
	if d.Content != "" || d.Role != chat.RoleAssistant {
		content := d.Content
		m.Content = &content
	}
	return m
}
