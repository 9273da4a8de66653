package storefactory

import (
	"context"
	"fmt"

	"webchat/internal/config"
	"webchat/internal/pkg/mongodb"
	"webchat/internal/repository"
	"webchat/internal/repository/mongostore"
	"webchat/internal/repository/sqlstore"
)

// Store 对话记录存储，附带建表/建索引能力
type Store interface {
	repository.TranscriptStore
	Migrate(ctx context.Context) error
}

// New 根据配置创建对话记录存储
func New(cfg *config.Config) (Store, error) {
	switch cfg.Store.Type {
	case "sqlite":
		return sqlstore.OpenSQLite(cfg.Store.DSN)
	case "postgres":
		return sqlstore.OpenPostgres(cfg.Store.DSN)
	case "mongo":
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("failed to connect mongodb: %w", err)
		}
		return mongostore.New(client), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}
}
