package service

import (
	"context"
	"time"

	"webchat/internal/ai"
	"webchat/internal/pkg/cache"
	"webchat/internal/pkg/logger"
)

// TitleService 对话标题生成
type TitleService struct {
	generator *ai.TitleGenerator
	cache     *cache.RedisCache
	timeout   time.Duration
}

// NewTitleService 创建标题服务，cache 可以为 nil
func NewTitleService(generator *ai.TitleGenerator, cache *cache.RedisCache, timeout time.Duration) *TitleService {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TitleService{generator: generator, cache: cache, timeout: timeout}
}

// Generate 生成标题；只缓存模型生成的结果
func (s *TitleService) Generate(ctx context.Context, query string) (string, ai.TitleSource) {
	key := cache.TitleCacheKey(query)
	if s.cache != nil {
		var cached string
		if err := s.cache.Get(ctx, key, &cached); err == nil && cached != "" {
			return cached, ai.TitleSourceModel
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	title, source := s.generator.Generate(ctx, query)
	if s.cache != nil && source == ai.TitleSourceModel {
		if err := s.cache.Set(context.WithoutCancel(ctx), key, title, cache.TitleCacheTTL); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("Failed to cache title")
		}
	}
	return title, source
}
