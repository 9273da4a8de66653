package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"webchat/internal/model/chat"
	"webchat/internal/pkg/mongodb"
)

const conversationCollection = "conversations"

// conversationDoc 对话文档，消息以内嵌数组保存，删除对话即一次 DeleteOne
type conversationDoc struct {
	ID         string       `bson:"_id"`
	Title      string       `bson:"title"`
	ExternalID string       `bson:"dify_conversation_id,omitempty"`
	UserID     string       `bson:"user_id"`
	CreatedAt  time.Time    `bson:"created_at"`
	UpdatedAt  time.Time    `bson:"updated_at"`
	Messages   []messageDoc `bson:"messages"`
}

// messageDoc 内嵌消息
type messageDoc struct {
	ID                string    `bson:"id"`
	Role              chat.Role `bson:"role"`
	Content           *string   `bson:"content"`
	FilesJSON         string    `bson:"files_json,omitempty"`
	ExternalMessageID string    `bson:"dify_message_id,omitempty"`
	CreatedAt         time.Time `bson:"created_at"`
}

var _ mongodb.Model = (*conversationDoc)(nil)

// Collection 集合名称
func (d *conversationDoc) Collection() string {
	return conversationCollection
}

// EnsureIndexes 创建对话集合索引
func (d *conversationDoc) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "user_id", Value: 1}, bson.E{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_user_updated"),
		},
		{
			Keys:    bson.D{bson.E{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_updated"),
		},
	}
	return mongodb.CreateIndexes(ctx, db.Collection(d.Collection()), indexes)
}

func (d *conversationDoc) toDomain() *chat.Conversation {
	return &chat.Conversation{
		ID:         d.ID,
		Title:      d.Title,
		ExternalID: d.ExternalID,
		UserID:     d.UserID,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func (m *messageDoc) toDomain(convID string) *chat.Message {
	msg := &chat.Message{
		ID:                m.ID,
		ConversationID:    convID,
		Role:              m.Role,
		Files:             chat.DecodeFiles(m.FilesJSON),
		ExternalMessageID: m.ExternalMessageID,
		CreatedAt:         m.CreatedAt,
	}
	if m.Content != nil {
		msg.Content = *m.Content
	}
	return msg
}

func toMessageDoc(msg *chat.Message) messageDoc {
	doc := messageDoc{
		ID:                msg.ID,
		Role:              msg.Role,
		FilesJSON:         chat.EncodeFiles(msg.Files),
		ExternalMessageID: msg.ExternalMessageID,
		CreatedAt:         msg.CreatedAt,
	}
	if msg.Content != "" || msg.Role != chat.RoleAssistant {
		content := msg.Content
		doc.Content = &content
	}
	return doc
}
