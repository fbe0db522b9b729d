package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// consoleHandler 面向终端的单行文本处理器
//
// 输出格式：2006/01/02 15:04:05.000 LEVEL 消息 key=value ...
// WithAttrs 绑定的属性在绑定时就预格式化，WithGroup 的组名作为
// 后续属性键的点分前缀。
type consoleHandler struct {
	level  slog.Level
	mu     *sync.Mutex
	out    io.Writer
	prefix string // 预格式化的绑定属性（含前导空格）
	groups string // 当前组路径（"a.b." 形式）
}

// newConsoleHandler 创建终端文本处理器
func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	return &consoleHandler{
		level: level,
		mu:    &sync.Mutex{},
		out:   out,
	}
}

// Enabled 检查日志级别是否启用
func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle 处理日志记录
func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = r.Time.AppendFormat(buf, "2006/01/02 15:04:05.000")
	buf = append(buf, ' ')
	buf = append(buf, r.Level.String()...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)
	buf = append(buf, h.prefix...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, a)
		return true
	})
	buf = append(buf, '\n')

	// 克隆共享同一把锁，保证多个派生记录器写同一输出时不交错
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

// appendAttr 追加一个 key=value 属性，键带组路径前缀
func (h *consoleHandler) appendAttr(buf []byte, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, h.groups...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	buf = append(buf, a.Value.Resolve().String()...)
	return buf
}

// WithAttrs 返回带有额外属性的处理器
func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	buf := []byte(h.prefix)
	for _, a := range attrs {
		buf = h.appendAttr(buf, a)
	}
	clone.prefix = string(buf)
	return &clone
}

// WithGroup 返回带有组的处理器
func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = h.groups + name + "."
	return &clone
}
