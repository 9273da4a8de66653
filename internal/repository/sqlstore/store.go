package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"webchat/internal/model/chat"
	"webchat/internal/pkg/id"
	"webchat/internal/repository"
)

// Store 基于 gorm 的关系型对话记录存储
type Store struct {
	db *gorm.DB
}

var _ repository.TranscriptStore = (*Store)(nil)

// OpenSQLite 打开 SQLite 数据库（纯 Go 驱动）
// dsn 为文件路径，":memory:" 表示内存库
func OpenSQLite(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite 同一时刻只允许一个写者
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return New(db), nil
}

// OpenPostgres 打开 PostgreSQL 数据库
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return New(db), nil
}

// New 使用已有的 gorm 连接创建存储
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 建表与索引
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ConversationModel{}, &MessageModel{})
}

// EnsureConversation id 为空时创建新对话；id 不为空时查找，不存在则以该 id 创建
func (s *Store) EnsureConversation(ctx context.Context, convID, title, userID string) (*chat.Conversation, error) {
	if convID != "" {
		conv, err := s.GetConversation(ctx, convID)
		if !errors.Is(err, repository.ErrConversationNotFound) {
			return conv, err
		}
	} else {
		convID = id.New()
	}

	if title == "" {
		title = repository.DefaultTitle
	}
	now := time.Now()
	m := &ConversationModel{
		ID:        convID,
		Title:     title,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// 并发创建同一 ID 时以先写入者为准
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(m).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return s.GetConversation(ctx, convID)
}

// GetConversation 根据 ID 查询
func (s *Store) GetConversation(ctx context.Context, convID string) (*chat.Conversation, error) {
	var m ConversationModel
	err := s.db.WithContext(ctx).Where("id = ?", convID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return m.ToDomain(), nil
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
	if err := s.db.WithContext(ctx).Create(toMessageModel(msg)).Error; err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}
	return msg.ID, nil
}

// UpdateAfterTurn 写入上游句柄并刷新更新时间
func (s *Store) UpdateAfterTurn(ctx context.Context, convID, externalID string, at time.Time) error {
	updates := map[string]any{"updated_at": at}
	if externalID != "" {
		updates["dify_conversation_id"] = externalID
	}
	err := s.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Where("id = ?", convID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}

// UpdateTitle 修改标题
func (s *Store) UpdateTitle(ctx context.Context, convID, title string) error {
	result := s.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Where("id = ?", convID).
		Updates(map[string]any{"title": title, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update title: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrConversationNotFound
	}
	return nil
}

// ListMessages 按创建时间升序返回消息
func (s *Store) ListMessages(ctx context.Context, convID string) ([]*chat.Message, error) {
	var models []*MessageModel
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at asc").
		Order("seq asc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]*chat.Message, len(models))
	for i, m := range models {
		messages[i] = m.ToDomain()
	}
	return messages, nil
}

// ListConversations 按更新时间倒序返回对话
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]*chat.Conversation, error) {
	query := s.db.WithContext(ctx).Model(&ConversationModel{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var models []*ConversationModel
	if err := query.Order("updated_at desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	convs := make([]*chat.Conversation, len(models))
	for i, m := range models {
		convs[i] = m.ToDomain()
	}
	return convs, nil
}

// DeleteConversation 在事务中删除消息和对话
func (s *Store) DeleteConversation(ctx context.Context, convID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).Delete(&MessageModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if err := tx.Where("id = ?", convID).Delete(&ConversationModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return nil
	})
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
