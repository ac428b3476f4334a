// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	// 配置 zerolog：统一使用 Unix 时间戳，默认输出到 stderr
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Init 允许服务在启动时覆盖全局日志配置（服务名、日志级别）
func Init(serviceName string, level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	base = zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个携带了当前链路信息的 Logger。
// 如果上下文中存在有效的 Span，会自动附加 trace_id / span_id，
// 这样日志就能和 Jaeger 中的链路关联起来。
func Ctx(ctx context.Context) *zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return &base
	}
	l := base.With().
		Str("trace_id", spanCtx.TraceID().String()).
		Str("span_id", spanCtx.SpanID().String()).
		Logger()
	return &l
}

// ConsoleWriter 返回适合本地开发的彩色控制台输出配置
func ConsoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}
