package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Store     StoreConfig     `mapstructure:"store"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	AI        AIConfig        `mapstructure:"ai"`
	Title     TitleConfig     `mapstructure:"title"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 流式接口需要设为 0 或足够大
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// UpstreamConfig 上游对话服务配置
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`        // 例如 http://host/v1
	APIKey         string        `mapstructure:"api_key"`         // Bearer Token
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // 建连超时
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`    // 流式读取空闲超时
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`    // 停止请求超时
	UploadTimeout  time.Duration `mapstructure:"upload_timeout"`  // 文件上传超时
	AudioTimeout   time.Duration `mapstructure:"audio_timeout"`   // 语音识别超时
	DefaultUser    string        `mapstructure:"default_user"`    // 未携带用户标识时使用
}

// ChatConfig 会话编排配置
type ChatConfig struct {
	DefaultTitle         string `mapstructure:"default_title"`
	TitleMaxRunes        int    `mapstructure:"title_max_runes"`  // 首轮自动标题长度
	RenameMaxRunes       int    `mapstructure:"rename_max_runes"` // 手动重命名长度上限
	ListLimit            int    `mapstructure:"list_limit"`
	ErrorSnippetRunes    int    `mapstructure:"error_snippet_runes"`
	PersistPartialOnStop bool   `mapstructure:"persist_partial_on_stop"`
}

// StoreConfig 对话记录存储配置
type StoreConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres, mongo
	DSN  string `mapstructure:"dsn"`  // sqlite 文件路径或 postgres DSN
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AIConfig 标题生成使用的模型配置
type AIConfig struct {
	Provider string          `mapstructure:"provider"`
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// TitleConfig 标题生成配置
type TitleConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxRunes int           `mapstructure:"max_runes"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig 附件归档存储配置，Type 为空表示不归档
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
	BaseURL  string `mapstructure:"base_url"`
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	PresignExpiry   int    `mapstructure:"presign_expiry"` // 秒
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	QPS     int  `mapstructure:"qps"`
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}

	switch c.Store.Type {
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for " + c.Store.Type)
		}
	case "mongo":
		if c.Mongo.URI == "" {
			return errors.New("mongo.uri is required when store.type is mongo")
		}
	default:
		return errors.New("invalid store type, must be sqlite/postgres/mongo")
	}

	if c.RateLimit.Enabled && c.RateLimit.QPS <= 0 {
		return errors.New("rate_limit.qps must be positive")
	}

	return nil
}
