package main

import (
	"log"
	"log/slog"

	"filedrive/internal/logging"
)

// newStdLogger 让 http.Server 的内部错误也走结构化日志。
func newStdLogger(l *logging.SlogLogger) *log.Logger {
	return slog.NewLogLogger(l.Slog().Handler(), slog.LevelWarn)
}
