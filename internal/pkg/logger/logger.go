package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"webchat/internal/config"
	"webchat/internal/pkg/ctxutil"
)

// ServiceName 每条日志附带的服务名
const ServiceName = "webchat"

// Init 初始化全局日志
func Init(cfg *config.LogConfig) error {
	// 设置日志级别，无法解析时使用 info
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// 设置时间格式，console 输出使用同一格式
	timeFormat := time.RFC3339
	switch cfg.TimeFormat {
	case "Unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "UnixMs":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	case "RFC3339Nano":
		zerolog.TimeFieldFormat = time.RFC3339Nano
		timeFormat = time.RFC3339Nano
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	output, err := openOutput(cfg)
	if err != nil {
		return err
	}

	// Console 格式 (开发环境友好)
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: timeFormat,
			NoColor:    cfg.Output == "file",
		}
	}

	// 设置全局 logger
	log.Logger = zerolog.New(output).With().
		Timestamp().
		Str("service", ServiceName).
		Caller().
		Logger()
	zerolog.DefaultContextLogger = &log.Logger

	return nil
}

// openOutput stdout / stderr / file
func openOutput(cfg *config.LogConfig) (io.Writer, error) {
	switch cfg.Output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.FilePath == "" {
			return os.Stdout, nil
		}
		return os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	default:
		return os.Stdout, nil
	}
}

// Ctx 返回带有 request_id / user_id 字段的 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	l := log.Logger.With()
	if rid := ctxutil.GetRequestID(ctx); rid != "" {
		l = l.Str("request_id", rid)
	}
	if uid, ok := ctxutil.GetUserID(ctx); ok {
		l = l.Str("user_id", uid)
	}
	logger := l.Logger()
	return &logger
}
