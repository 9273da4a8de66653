package storagefactory

import (
	"fmt"

	"webchat/internal/config"
	"webchat/internal/pkg/storage"
	"webchat/internal/pkg/storage/local"
	"webchat/internal/pkg/storage/oss"
)

// NewStorage 根据配置创建附件归档存储
// Type 为空时返回 nil, nil，表示不归档
func NewStorage(cfg *config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case string(storage.StorageTypeLocal):
		if cfg.Local == nil {
			return nil, fmt.Errorf("local storage config is required")
		}
		return local.NewLocalStorage(cfg.Local.BasePath, cfg.Local.BaseURL)
	case string(storage.StorageTypeOSS):
		if cfg.OSS == nil {
			return nil, fmt.Errorf("OSS storage config is required")
		}
		return oss.NewOSSStorage(
			cfg.OSS.Endpoint,
			cfg.OSS.Bucket,
			cfg.OSS.AccessKeyID,
			cfg.OSS.AccessKeySecret,
		)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
