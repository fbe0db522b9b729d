package logger

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel 解析日志等级字符串，未知值回落到 INFO
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger 初始化日志记录器
//
// 终端输出普通文本，log 目录下按日期分割的文件输出 JSON。
// 返回主日志记录器与日志文件的轮转写入器（进程退出时关闭）；
// 日志文件不可写时仅保留终端输出，轮转写入器为 nil。
func InitLogger(logLevel string) (*slog.Logger, *RotateWriter) {
	level := ParseLevel(logLevel)

	consoleHandler := newConsoleHandler(os.Stdout, level)

	if err := os.MkdirAll("log", 0o755); err != nil {
		logger := slog.New(consoleHandler)
		logger.Error("创建日志目录失败，将仅输出到终端", "error", err)
		return logger, nil
	}

	fileHandler, writer, err := newDailyHandler("log", "relay", level)
	if err != nil {
		logger := slog.New(consoleHandler)
		logger.Error("无法创建日志文件，将仅输出到终端", "error", err)
		return logger, nil
	}

	return slog.New(newFanoutHandler(consoleHandler, fileHandler)), writer
}
