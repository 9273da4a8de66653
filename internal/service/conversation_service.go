package service

import (
	"context"
	"strings"

	"webchat/internal/config"
	"webchat/internal/model/chat"
	"webchat/internal/pkg/textutil"
	"webchat/internal/repository"
)

// ConversationService 对话管理服务
type ConversationService struct {
	store repository.TranscriptStore
	cfg   config.ChatConfig
}

// NewConversationService 创建对话管理服务
func NewConversationService(store repository.TranscriptStore, cfg config.ChatConfig) *ConversationService {
	if cfg.RenameMaxRunes <= 0 {
		cfg.RenameMaxRunes = 80
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 200
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = repository.DefaultTitle
	}
	return &ConversationService{store: store, cfg: cfg}
}

// Create 显式创建对话
func (s *ConversationService) Create(ctx context.Context, title, user string) (*chat.Conversation, error) {
	return s.store.EnsureConversation(ctx, "", s.normalizeTitle(title), user)
}

// List 按更新时间倒序列出对话，limit 超出上限时取上限
func (s *ConversationService) List(ctx context.Context, user string, limit int) ([]*chat.Conversation, error) {
	if limit <= 0 || limit > s.cfg.ListLimit {
		limit = s.cfg.ListLimit
	}
	return s.store.ListConversations(ctx, user, limit)
}

// Get 查询单个对话
func (s *ConversationService) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// Messages 按时间顺序返回对话消息
func (s *ConversationService) Messages(ctx context.Context, id string) ([]*chat.Message, error) {
	return s.store.ListMessages(ctx, id)
}

// Rename 修改标题，返回实际保存的标题
func (s *ConversationService) Rename(ctx context.Context, id, title string) (string, error) {
	title = s.normalizeTitle(title)
	if err := s.store.UpdateTitle(ctx, id, title); err != nil {
		return "", err
	}
	return title, nil
}

// Delete 删除对话及其消息
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteConversation(ctx, id)
}

func (s *ConversationService) normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return s.cfg.DefaultTitle
	}
	return textutil.TruncateRunes(title, s.cfg.RenameMaxRunes)
}
