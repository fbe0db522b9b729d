package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotateWriter 按日期轮转的日志文件写入器
//
// 每次写入前检查日期，跨日时关闭旧文件并切换到
// <dir>/<base>-YYYY-MM-DD.log。
type RotateWriter struct {
	mu   sync.Mutex
	dir  string
	base string
	date string
	file *os.File
}

// newDailyHandler 创建按日期分割的 JSON 文件处理器
//
// 返回处理器与底层轮转写入器；写入器需要在进程退出时关闭。
// 轮转逻辑全部落在写入器一层，处理器派生（WithAttrs/WithGroup）
// 自然共享同一份轮转状态。
func newDailyHandler(dir, baseName string, level slog.Level) (slog.Handler, *RotateWriter, error) {
	w := &RotateWriter{dir: dir, base: baseName}

	w.mu.Lock()
	err := w.rotateLocked(time.Now())
	w.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return handler, w, nil
}

// Write 实现 io.Writer，必要时先轮转
func (w *RotateWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateLocked(time.Now()); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

// Close 关闭当前日志文件
func (w *RotateWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotateLocked 跨日时切换日志文件，调用方需持有锁
func (w *RotateWriter) rotateLocked(now time.Time) error {
	date := now.Format(time.DateOnly)
	if date == w.date && w.file != nil {
		return nil
	}

	if w.file != nil {
		w.file.Close()
	}

	path := filepath.Join(w.dir, w.base+"-"+date+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	w.date = date
	w.file = file
	return nil
}
