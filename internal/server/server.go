package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"webchat/internal/ai"
	"webchat/internal/ai/component"
	"webchat/internal/cancel"
	"webchat/internal/config"
	"webchat/internal/handler"
	chatHandler "webchat/internal/handler/chat"
	conversationHandler "webchat/internal/handler/conversation"
	"webchat/internal/pkg/cache"
	"webchat/internal/pkg/id"
	"webchat/internal/pkg/storagefactory"
	"webchat/internal/repository/storefactory"
	"webchat/internal/server/middleware"
	"webchat/internal/service"
	"webchat/internal/upstream"
)

// Server HTTP 服务器
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	store    storefactory.Store
	redis    *cache.RedisCache
	notifier *cancel.RedisNotifier

	chatService         *service.ChatService
	conversationService *service.ConversationService
	fileService         *service.FileService
	titleService        *service.TitleService
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// 对话记录存储（必需）
	store, err := storefactory.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to migrate transcript store")
	}
	log.Info().Str("type", cfg.Store.Type).Msg("transcript store ready")

	// 初始化 Redis (可选)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	relay := upstream.NewClient(&cfg.Upstream)
	if cfg.Chat.ErrorSnippetRunes > 0 {
		relay.SetErrorSnippetRunes(cfg.Chat.ErrorSnippetRunes)
	}

	registry := cancel.NewRegistry()
	chatService := service.NewChatService(store, relay, registry, cfg.Chat)

	var notifier *cancel.RedisNotifier
	if redisCache != nil {
		notifier = cancel.NewRedisNotifier(redisCache.Client(), registry, id.New())
		chatService.SetStopNotifier(notifier)
	}

	// 附件归档 (可选)
	archive, err := storagefactory.NewStorage(&cfg.Storage)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize attachment storage, archiving disabled")
		archive = nil
	} else if archive != nil {
		log.Info().Str("type", string(archive.GetStorageType())).Msg("attachment archiving enabled")
	}

	// 标题模型 (可选)
	titleService := service.NewTitleService(newTitleGenerator(cfg), redisCache, cfg.Title.Timeout)

	srv := &Server{
		cfg:                 cfg,
		engine:              engine,
		store:               store,
		redis:               redisCache,
		notifier:            notifier,
		chatService:         chatService,
		conversationService: service.NewConversationService(store, cfg.Chat),
		fileService:         service.NewFileService(relay, archive),
		titleService:        titleService,
	}

	srv.setupRoutes()

	return srv, nil
}

func newTitleGenerator(cfg *config.Config) *ai.TitleGenerator {
	defaultTitle := cfg.Chat.DefaultTitle
	if !cfg.Title.Enabled {
		return ai.NewTitleGenerator(nil, 0, cfg.Title.MaxRunes, defaultTitle)
	}

	chatModel, err := component.NewChatModel(context.Background(), &cfg.AI)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize title model, falling back to keywords")
		chatModel = nil
	} else if chatModel != nil {
		log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized title model")
	}
	return ai.NewTitleGenerator(chatModel, cfg.AI.Options.Temperature, cfg.Title.MaxRunes, defaultTitle)
}

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.UserIdentity(s.cfg.Upstream.DefaultUser))
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	checks := map[string]handler.Pinger{"store": s.store}
	if s.redis != nil {
		checks["redis"] = redisPinger{s.redis.Client()}
	}
	healthHandler := handler.NewHealthHandler(checks)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		limited := []gin.HandlerFunc{}
		if s.cfg.RateLimit.Enabled {
			var client *redis.Client
			if s.redis != nil {
				client = s.redis.Client()
			}
			limited = append(limited, middleware.RateLimit(client, s.cfg.RateLimit.QPS))
		}

		chatHdl := chatHandler.NewHandler(s.chatService, s.fileService, s.titleService)
		v1.POST("/chat", append(limited, chatHdl.Chat)...)
		v1.POST("/chat/stop", chatHdl.Stop)
		v1.POST("/upload", append(limited, chatHdl.Upload)...)
		v1.POST("/audio-to-text", append(limited, chatHdl.AudioToText)...)
		v1.POST("/title", chatHdl.Title)

		convHdl := conversationHandler.NewHandler(s.conversationService)
		conversations := v1.Group("/conversations")
		{
			conversations.POST("", convHdl.Create)
			conversations.GET("", convHdl.List)
			conversations.GET("/:id", convHdl.Get)
			conversations.GET("/:id/messages", convHdl.Messages)
			conversations.PUT("/:id/title", convHdl.Rename)
			conversations.DELETE("/:id", convHdl.Delete)
		}
	}
}

// redisPinger 适配就绪检查
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	if s.notifier != nil {
		go func() {
			if err := s.notifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("stop notifier exited")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		if err := s.store.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close transcript store")
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return err
	case err := <-errCh:
		return err
	}
}

// Engine 返回 gin 引擎，供测试使用
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
