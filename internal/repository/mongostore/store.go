package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"webchat/internal/model/chat"
	"webchat/internal/pkg/id"
	"webchat/internal/pkg/mongodb"
	"webchat/internal/repository"
)

// Store 基于 MongoDB 的对话记录存储
type Store struct {
	client     *mongodb.Client
	collection *mongo.Collection
}

var _ repository.TranscriptStore = (*Store)(nil)

// New 创建存储
func New(client *mongodb.Client) *Store {
	return &Store{
		client:     client,
		collection: client.Collection(conversationCollection),
	}
}

// Migrate 创建索引
func (s *Store) Migrate(ctx context.Context) error {
	return mongodb.EnsureAllIndexes(ctx, s.client.Database(), &conversationDoc{})
}

// EnsureConversation id 为空时创建新对话；id 不为空时查找，不存在则以该 id 创建
func (s *Store) EnsureConversation(ctx context.Context, convID, title, userID string) (*chat.Conversation, error) {
	if convID == "" {
		convID = id.New()
	}
	if title == "" {
		title = repository.DefaultTitle
	}

	now := time.Now()
	update := bson.M{"$setOnInsert": bson.M{
		"title":      title,
		"user_id":    userID,
		"created_at": now,
		"updated_at": now,
		"messages":   []messageDoc{},
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.collection.UpdateByID(ctx, convID, update, opts); err != nil {
		return nil, fmt.Errorf("failed to ensure conversation: %w", err)
	}
	return s.GetConversation(ctx, convID)
}

// GetConversation 根据 ID 查询，不返回消息
func (s *Store) GetConversation(ctx context.Context, convID string) (*chat.Conversation, error) {
	opts := options.FindOne().SetProjection(bson.M{"messages": 0})

	var doc conversationDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": convID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return doc.toDomain(), nil
}

// GetExternalID 查询上游会话句柄，查询失败视为无上游上下文
func (s *Store) GetExternalID(ctx context.Context, convID string) string {
	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return ""
	}
	return conv.ExternalID
}

// AppendMessage 追加消息
func (s *Store) AppendMessage(ctx context.Context, msg *chat.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = id.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	update := bson.M{"$push": bson.M{"messages": toMessageDoc(msg)}}
	result, err := s.collection.UpdateByID(ctx, msg.ConversationID, update)
	if err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	if result.MatchedCount == 0 {
		return "", repository.ErrConversationNotFound
	}
	return msg.ID, nil
}

// UpdateAfterTurn 写入上游句柄并刷新更新时间
func (s *Store) UpdateAfterTurn(ctx context.Context, convID, externalID string, at time.Time) error {
	set := bson.M{"updated_at": at}
	if externalID != "" {
		set["dify_conversation_id"] = externalID
	}
	if _, err := s.collection.UpdateByID(ctx, convID, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// UpdateTitle 修改标题
func (s *Store) UpdateTitle(ctx context.Context, convID, title string) error {
	update := bson.M{"$set": bson.M{"title": title, "updated_at": time.Now()}}
	result, err := s.collection.UpdateByID(ctx, convID, update)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrConversationNotFound
	}
	return nil
}

// ListMessages 按创建时间升序返回消息，对话不存在时返回空列表
func (s *Store) ListMessages(ctx context.Context, convID string) ([]*chat.Message, error) {
	opts := options.FindOne().SetProjection(bson.M{"messages": 1})

	var doc conversationDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": convID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []*chat.Message{}, nil
		}
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	// 数组按追加顺序保存，稳定排序保证同一时间戳下仍按追加顺序
	sort.SliceStable(doc.Messages, func(i, j int) bool {
		return doc.Messages[i].CreatedAt.Before(doc.Messages[j].CreatedAt)
	})

	messages := make([]*chat.Message, len(doc.Messages))
	for i := range doc.Messages {
		messages[i] = doc.Messages[i].toDomain(convID)
	}
	return messages, nil
}

// ListConversations 按更新时间倒序返回对话
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]*chat.Conversation, error) {
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "updated_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"messages": 0})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	convs := make([]*chat.Conversation, len(docs))
	for i, d := range docs {
		convs[i] = d.toDomain()
	}
	return convs, nil
}

// DeleteConversation 删除对话文档，内嵌消息随之一并删除
func (s *Store) DeleteConversation(ctx context.Context, convID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": convID}); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close 断开连接
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
