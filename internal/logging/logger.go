// Package logging 定义项目内使用的结构化日志接口。
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 是带 context 的结构化日志接口，args 按 key/value 成对解释：
//
//	log.Info(ctx, "upload completed", "file_id", id, "parts", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	// With 返回始终携带给定字段的子日志器。
	With(args ...any) Logger
}

// New 按级别与格式（text/json）创建写到 stdout 的日志器。
func New(level, format string) *SlogLogger {
	return NewWithWriter(os.Stdout, level, format)
}

func NewWithWriter(w io.Writer, level, format string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: parseLevel(level), AddSource: true}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return NewSlogLogger(slog.New(h).With("service", "filedrive"))
}

// Nop 丢弃全部输出，测试里使用。
func Nop() *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
