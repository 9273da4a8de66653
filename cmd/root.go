package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"webchat/internal/config"
	"webchat/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "webchat",
	Short: "WebChat - streaming chat proxy for Dify-style services",
	Long: `WebChat relays browser chat turns to an upstream conversational AI service,
streams the answer back as server-sent events and keeps the transcript.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.webchat")
	}

	// 环境变量设置
	viper.SetEnvPrefix("WEBCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	// 流式响应不设写超时
	viper.SetDefault("server.write_timeout", "0s")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// Upstream
	viper.SetDefault("upstream.base_url", "http://localhost/v1")
	viper.SetDefault("upstream.connect_timeout", "10s")
	viper.SetDefault("upstream.read_timeout", "120s")
	viper.SetDefault("upstream.stop_timeout", "5s")
	viper.SetDefault("upstream.upload_timeout", "60s")
	viper.SetDefault("upstream.audio_timeout", "30s")
	viper.SetDefault("upstream.default_user", "default_user")

	// Chat
	viper.SetDefault("chat.default_title", "新对话")
	viper.SetDefault("chat.title_max_runes", 60)
	viper.SetDefault("chat.rename_max_runes", 80)
	viper.SetDefault("chat.list_limit", 200)
	viper.SetDefault("chat.error_snippet_runes", 400)
	viper.SetDefault("chat.persist_partial_on_stop", false)

	// Store
	viper.SetDefault("store.type", "sqlite")
	viper.SetDefault("store.dsn", "chat_history.db")

	// MongoDB
	viper.SetDefault("mongo.database", "webchat")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.db", 0)

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "deepseek-chat")
	viper.SetDefault("ai.base_url", "https://api.deepseek.com/v1")
	viper.SetDefault("ai.options.temperature", 0.3)
	viper.SetDefault("ai.options.max_tokens", 20)

	// Title
	viper.SetDefault("title.enabled", true)
	viper.SetDefault("title.max_runes", 10)
	viper.SetDefault("title.timeout", "15s")

	// Rate limit
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.qps", 10)
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
